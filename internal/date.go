package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/djherbis/times"
)

// TimestampSource records which strategy produced a resolved timestamp.
type TimestampSource string

const (
	SourceMetadata  TimestampSource = "metadata"
	SourceBirthTime TimestampSource = "birthtime"
	SourceModTime   TimestampSource = "mtime"
	SourceNow       TimestampSource = "now"
)

// TimestampFunc returns a timestamp for path, or an error wrapping
// ErrTimestampUnavailable when this source has nothing to offer.
type TimestampFunc func(path string) (time.Time, error)

type TimestampStrategy struct {
	Source  TimestampSource
	Resolve TimestampFunc
}

// ResolvedTime is the authoritative creation time assigned to a file.
type ResolvedTime struct {
	Time   time.Time
	Source TimestampSource
}

// Resolver tries its strategies in order and falls back to the current time.
type Resolver struct {
	strategies []TimestampStrategy
	loc        *time.Location
	logger     *slog.Logger
	now        func() time.Time
}

func NewResolver(loc *time.Location, logger *slog.Logger, strategies ...TimestampStrategy) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Resolver{
		strategies: strategies,
		loc:        loc,
		logger:     logger,
		now:        time.Now,
	}
}

// DefaultStrategies is the standard chain: embedded metadata, then
// filesystem birth time, then modification time.
func DefaultStrategies(meta *MetadataReader) []TimestampStrategy {
	return []TimestampStrategy{
		{Source: SourceMetadata, Resolve: meta.CaptureTime},
		{Source: SourceBirthTime, Resolve: getFileBirthTime},
		{Source: SourceModTime, Resolve: getFileModTime},
	}
}

// Resolve never fails; when every strategy misses it returns the current time.
func (r *Resolver) Resolve(path string) ResolvedTime {
	for _, s := range r.strategies {
		t, err := s.Resolve(path)
		if err == nil && !t.IsZero() {
			return ResolvedTime{Time: t.In(r.loc), Source: s.Source}
		}
		if err == nil || errors.Is(err, ErrTimestampUnavailable) {
			r.logger.Debug("timestamp source unavailable, falling back", "file", path, "source", s.Source, "reason", err)
		} else {
			r.logger.Warn("timestamp source failed, falling back", "file", path, "source", s.Source, "error", err)
		}
	}

	r.logger.Warn("no timestamp source available, using current time", "file", path)
	return ResolvedTime{Time: r.now().In(r.loc), Source: SourceNow}
}

// getFileBirthTime returns the true creation time where the platform records one
func getFileBirthTime(path string) (time.Time, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.HasBirthTime() {
		return time.Time{}, fmt.Errorf("%w: no birth time on this filesystem", ErrTimestampUnavailable)
	}
	return ts.BirthTime(), nil
}

// getFileModTime fallback to file modification time
func getFileModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}
