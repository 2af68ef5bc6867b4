package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	execute "github.com/alexellis/go-execute/v2"
)

// TranscodeOptions is the target format for uploaded videos.
type TranscodeOptions struct {
	FFmpegPath  string
	FFprobePath string
	Width       int
	Height      int
	FPS         int
	MaxDuration time.Duration
	VideoCodec  string
	AudioCodec  string
}

// FFmpegTranscoder converts videos with the ffmpeg binary.
type FFmpegTranscoder struct {
	opts   TranscodeOptions
	logger *slog.Logger
}

func NewFFmpegTranscoder(opts TranscodeOptions, logger *slog.Logger) *FFmpegTranscoder {
	if logger == nil {
		logger = discardLogger()
	}
	return &FFmpegTranscoder{opts: opts, logger: logger}
}

// Args builds the ffmpeg command line: H.264/AAC, scaled and padded to the
// target frame, fixed frame rate, trimmed, moov atom at the front.
func (t *FFmpegTranscoder) Args(src, dst string) []string {
	o := t.opts
	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		o.Width, o.Height, o.Width, o.Height)
	return []string{
		"-y",
		"-i", src,
		"-t", strconv.Itoa(int(o.MaxDuration.Seconds())),
		"-c:v", o.VideoCodec,
		"-c:a", o.AudioCodec,
		"-vf", filter,
		"-r", strconv.Itoa(o.FPS),
		"-movflags", "+faststart",
		"-f", "mp4",
		dst,
	}
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, src, dst string) error {
	if props, err := t.Probe(ctx, src); err == nil {
		t.logger.Info("original video properties", props.LogAttrs()...)
	} else {
		t.logger.Debug("ffprobe failed", "file", src, "error", err)
	}

	task := execute.ExecTask{
		Command: t.opts.FFmpegPath,
		Args:    t.Args(src, dst),
	}
	t.logger.Debug("executing", "command", task.Command, "args", task.Args)

	res, err := task.Execute(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTranscode, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: ffmpeg exited with code %d: %s", ErrTranscode, res.ExitCode, lastLine(res.Stderr))
	}

	if props, err := t.Probe(ctx, dst); err == nil {
		t.logger.Info("converted video properties", props.LogAttrs()...)
	}
	return nil
}

// VideoProperties is the subset of ffprobe output worth logging
type VideoProperties struct {
	Duration    float64
	Width       int
	Height      int
	FPS         float64
	VideoCodec  string
	AudioCodec  string
	BitRate     string
	AspectRatio string
}

func (p VideoProperties) LogAttrs() []any {
	return []any{
		"duration", p.Duration,
		"resolution", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"fps", p.FPS,
		"video_codec", p.VideoCodec,
		"audio_codec", p.AudioCodec,
		"bitrate", p.BitRate,
		"aspect_ratio", p.AspectRatio,
	}
}

type probeOutput struct {
	Streams []struct {
		CodecType          string `json:"codec_type"`
		CodecName          string `json:"codec_name"`
		Width              int    `json:"width"`
		Height             int    `json:"height"`
		RFrameRate         string `json:"r_frame_rate"`
		DisplayAspectRatio string `json:"display_aspect_ratio"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe runs ffprobe on path.
func (t *FFmpegTranscoder) Probe(ctx context.Context, path string) (VideoProperties, error) {
	task := execute.ExecTask{
		Command: t.opts.FFprobePath,
		Args:    []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path},
	}
	res, err := task.Execute(ctx)
	if err != nil {
		return VideoProperties{}, err
	}
	if res.ExitCode != 0 {
		return VideoProperties{}, fmt.Errorf("ffprobe exited with code %d: %s", res.ExitCode, lastLine(res.Stderr))
	}
	return parseProbe([]byte(res.Stdout))
}

func parseProbe(data []byte) (VideoProperties, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return VideoProperties{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	props := VideoProperties{
		VideoCodec:  "unknown",
		AudioCodec:  "unknown",
		BitRate:     "unknown",
		AspectRatio: "unknown",
	}
	if out.Format.BitRate != "" {
		props.BitRate = out.Format.BitRate
	}
	props.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)

	videoSeen, audioSeen := false, false
	for _, s := range out.Streams {
		switch {
		case s.CodecType == "video" && !videoSeen:
			videoSeen = true
			props.VideoCodec = s.CodecName
			props.Width, props.Height = s.Width, s.Height
			props.FPS = parseFrameRate(s.RFrameRate)
			if s.DisplayAspectRatio != "" {
				props.AspectRatio = s.DisplayAspectRatio
			}
		case s.CodecType == "audio" && !audioSeen:
			audioSeen = true
			props.AudioCodec = s.CodecName
		}
	}
	return props, nil
}

// parseFrameRate turns ffprobe's "30000/1001" into a float
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
