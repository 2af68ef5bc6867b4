package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// TranscodeConfig holds the target format for uploaded videos
type TranscodeConfig struct {
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	FPS         int    `mapstructure:"fps"`
	MaxDuration int    `mapstructure:"max_duration"` // seconds
	VideoCodec  string `mapstructure:"video_codec"`
	AudioCodec  string `mapstructure:"audio_codec"`
}

type Config struct {
	Username               string          `mapstructure:"username"`
	Password               string          `mapstructure:"password"`
	GatewayURL             string          `mapstructure:"gateway_url"`
	SourceDir              string          `mapstructure:"source_dir"`
	ArchiveDir             string          `mapstructure:"archive_dir"`
	FailedDir              string          `mapstructure:"failed_dir"`
	Timezone               string          `mapstructure:"timezone"`
	LogFile                string          `mapstructure:"log_file"`
	ScanExt                []string        `mapstructure:"scan_extensions"`
	UseExifTool            bool            `mapstructure:"use_exiftool"`
	FFmpegPath             string          `mapstructure:"ffmpeg_path"`
	FFprobePath            string          `mapstructure:"ffprobe_path"`
	TempDir                string          `mapstructure:"temp_dir"`
	OnError                string          `mapstructure:"on_error"`
	MaxConsecutiveFailures int             `mapstructure:"max_consecutive_failures"`
	Manifest               bool            `mapstructure:"manifest"`
	Transcode              TranscodeConfig `mapstructure:"transcode"`

	location *time.Location
}

// LoadOptions points LoadConfig at explicit files; empty fields use the defaults.
type LoadOptions struct {
	ConfigFile string
	EnvFile    string
}

// LoadConfig reads instaposter.toml, the environment and an optional .env file.
// Environment variables use the prefix INSTAPOSTER with dots replaced by
// underscores ("transcode.fps" becomes INSTAPOSTER_TRANSCODE_FPS). Credentials
// come from INSTA_USERNAME and INSTA_PASSWORD.
func LoadConfig(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("instaposter")
		v.SetConfigType("toml")
		if configDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configDir, "instaposter"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("INSTAPOSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range map[string][]string{
		"username": {"INSTA_USERNAME", "INSTAPOSTER_USERNAME"},
		"password": {"INSTA_PASSWORD", "INSTAPOSTER_PASSWORD"},
	} {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file; defaults and environment are enough
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for i, ext := range cfg.ScanExt {
		cfg.ScanExt[i] = normalizeExt(ext)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("gateway_url", "http://127.0.0.1:8000")
	v.SetDefault("source_dir", "photodump")
	v.SetDefault("archive_dir", "posted_media")
	v.SetDefault("failed_dir", "failed_media")
	v.SetDefault("timezone", "America/Chicago")
	v.SetDefault("log_file", "instagram_poster.log")
	v.SetDefault("scan_extensions", []string{".jpg", ".jpeg", ".png", ".mp4", ".mov"})
	v.SetDefault("use_exiftool", false)
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("temp_dir", os.TempDir())
	v.SetDefault("on_error", string(OnErrorAbort))
	v.SetDefault("max_consecutive_failures", 5)
	v.SetDefault("manifest", true)
	v.SetDefault("transcode.width", 1080)
	v.SetDefault("transcode.height", 1920)
	v.SetDefault("transcode.fps", 30)
	v.SetDefault("transcode.max_duration", 60)
	v.SetDefault("transcode.video_codec", "libx264")
	v.SetDefault("transcode.audio_codec", "aac")
}

// Validate checks the settings a run needs. Credentials are only required
// when the run actually talks to the platform.
func (c *Config) Validate(dryRun bool) error {
	if c.SourceDir == "" || c.ArchiveDir == "" {
		return errors.New("source_dir and archive_dir must be set")
	}
	if filepath.Clean(c.SourceDir) == filepath.Clean(c.ArchiveDir) {
		return errors.New("source_dir and archive_dir must differ")
	}
	if len(c.ScanExt) == 0 {
		return errors.New("scan_extensions must not be empty")
	}
	if _, err := ParseErrorPolicy(c.OnError); err != nil {
		return err
	}
	if err := c.Transcode.validate(); err != nil {
		return err
	}
	if !dryRun && (c.Username == "" || c.Password == "") {
		return errors.New("missing INSTA_USERNAME or INSTA_PASSWORD (set them in the environment or .env)")
	}
	return nil
}

func (t TranscodeConfig) validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("transcode.width and transcode.height must be positive, got %dx%d", t.Width, t.Height)
	}
	if t.FPS <= 0 {
		return fmt.Errorf("transcode.fps must be positive, got %d", t.FPS)
	}
	if t.MaxDuration <= 0 {
		return fmt.Errorf("transcode.max_duration must be positive, got %d", t.MaxDuration)
	}
	if t.VideoCodec == "" || t.AudioCodec == "" {
		return errors.New("transcode.video_codec and transcode.audio_codec must be set")
	}
	return nil
}

// Location returns the zone every resolved timestamp is normalized to.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// TranscodeOptions converts the config block into transcoder options.
func (c *Config) TranscodeOptions() TranscodeOptions {
	return TranscodeOptions{
		FFmpegPath:  c.FFmpegPath,
		FFprobePath: c.FFprobePath,
		Width:       c.Transcode.Width,
		Height:      c.Transcode.Height,
		FPS:         c.Transcode.FPS,
		MaxDuration: time.Duration(c.Transcode.MaxDuration) * time.Second,
		VideoCodec:  c.Transcode.VideoCodec,
		AudioCodec:  c.Transcode.AudioCodec,
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
