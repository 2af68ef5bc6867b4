package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Platform authenticates against the social network.
type Platform interface {
	Login(ctx context.Context) (Session, error)
}

// Session is an authenticated connection able to upload media.
type Session interface {
	UploadPhoto(ctx context.Context, path, caption string) error
	UploadVideo(ctx context.Context, path, caption string) error
}

// ImageTransformer writes an orientation-corrected copy of src to dst.
type ImageTransformer interface {
	Orient(ctx context.Context, src, dst string) error
}

// VideoTransformer writes a platform-compatible transcode of src to dst.
type VideoTransformer interface {
	Transcode(ctx context.Context, src, dst string) error
}

// Publisher routes a file to the image or video path and uploads it.
type Publisher struct {
	images  ImageTransformer
	videos  VideoTransformer
	tempDir string
	logger  *slog.Logger
}

func NewPublisher(images ImageTransformer, videos VideoTransformer, tempDir string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = discardLogger()
	}
	return &Publisher{images: images, videos: videos, tempDir: tempDir, logger: logger}
}

// Publish uploads path with caption. Any temporary file created here is
// removed before it returns, whatever the outcome.
func (p *Publisher) Publish(ctx context.Context, session Session, path, caption string) error {
	p.logger.Info("preparing to upload", "file", path)

	switch ClassifyMedia(path) {
	case KindImage:
		return p.publishImage(ctx, session, path, caption)
	case KindVideo:
		return p.publishVideo(ctx, session, path, caption)
	default:
		return NewProcessError(path, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path)))
	}
}

func (p *Publisher) publishImage(ctx context.Context, session Session, path, caption string) error {
	tmp, err := p.acquireTemp("oriented", path)
	if err != nil {
		p.logger.Warn("cannot create temp file, uploading original", "file", path, "error", err)
		return p.upload(ctx, session.UploadPhoto, path, path, caption)
	}
	defer p.releaseTemp(tmp)

	upload := tmp
	if err := p.images.Orient(ctx, path, tmp); err != nil {
		p.logger.Warn("failed to correct orientation, uploading original", "file", path, "error", err)
		upload = path
	} else {
		p.logger.Info("corrected orientation", "file", path, "temp", tmp)
	}

	return p.upload(ctx, session.UploadPhoto, path, upload, caption)
}

func (p *Publisher) publishVideo(ctx context.Context, session Session, path, caption string) error {
	tmp, err := p.acquireTemp("converted", path)
	if err != nil {
		return NewProcessError(path, fmt.Errorf("%w: temp file: %v", ErrTranscode, err))
	}
	defer p.releaseTemp(tmp)

	if err := p.videos.Transcode(ctx, path, tmp); err != nil {
		p.logger.Error("failed to convert video", "file", path, "error", err)
		if !errors.Is(err, ErrTranscode) {
			err = fmt.Errorf("%w: %v", ErrTranscode, err)
		}
		return NewProcessError(path, err)
	}

	return p.upload(ctx, session.UploadVideo, path, tmp, caption)
}

func (p *Publisher) upload(ctx context.Context, fn func(context.Context, string, string) error, original, path, caption string) error {
	if err := fn(ctx, path, caption); err != nil {
		if !errors.Is(err, ErrUpload) {
			err = fmt.Errorf("%w: %v", ErrUpload, err)
		}
		return NewProcessError(original, err)
	}
	return nil
}

// acquireTemp reserves a temp path keeping the source extension, so encoders
// pick the right format from the name.
func (p *Publisher) acquireTemp(prefix, src string) (string, error) {
	ext := strings.ToLower(filepath.Ext(src))
	if ClassifyMedia(src) == KindVideo {
		ext = ".mp4"
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	f, err := os.CreateTemp(p.tempDir, prefix+"_"+base+"_*"+ext)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func (p *Publisher) releaseTemp(path string) {
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to remove temporary file", "temp", path, "error", err)
		}
		return
	}
	p.logger.Debug("removed temporary file", "temp", path)
}
