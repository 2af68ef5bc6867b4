package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MediaKind is the publishing route for a file
type MediaKind int

const (
	KindUnsupported MediaKind = iota
	KindImage
	KindVideo
)

func (k MediaKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unsupported"
	}
}

func (k MediaKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

var (
	imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}
	videoExtensions = map[string]bool{".mp4": true, ".mov": true}
)

// ClassifyMedia routes a file by its extension, case-insensitively.
func ClassifyMedia(path string) MediaKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExtensions[ext]:
		return KindImage
	case videoExtensions[ext]:
		return KindVideo
	default:
		return KindUnsupported
	}
}

// MediaCandidate is a file in the source directory eligible for selection.
type MediaCandidate struct {
	Path      string          `json:"path"`
	Filename  string          `json:"filename"`
	Kind      MediaKind       `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Source    TimestampSource `json:"timestamp_source"`
}

// Selector finds the oldest candidate in a flat source directory. It keeps no
// state between calls; every call rescans the directory.
type Selector struct {
	dir        string
	extensions map[string]bool
	resolver   *Resolver
	logger     *slog.Logger
}

func NewSelector(dir string, extensions []string, resolver *Resolver, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = discardLogger()
	}
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[normalizeExt(e)] = true
	}
	return &Selector{dir: dir, extensions: exts, resolver: resolver, logger: logger}
}

func (s *Selector) Dir() string {
	return s.dir
}

// Scan returns every candidate sorted oldest first; ties are broken by filename.
func (s *Selector) Scan() ([]MediaCandidate, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDirectory, s.dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDirectory, s.dir)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDirectory, s.dir, err)
	}

	var candidates []MediaCandidate
	for _, entry := range entries {
		name := entry.Name()
		if !s.extensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		path := filepath.Join(s.dir, name)
		if !isRegularFile(entry, path) {
			continue
		}

		c, err := s.candidate(path, name)
		if err != nil {
			s.logger.Warn("skipping file", "file", path, "error", err)
			continue
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Filename < b.Filename
	})
	return candidates, nil
}

// isRegularFile follows symlinks; subdirectories and dangling links are not candidates
func isRegularFile(entry fs.DirEntry, path string) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// candidate resolves one file; a panicking metadata decoder only loses this file.
func (s *Selector) candidate(path, name string) (c MediaCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("timestamp resolution panicked: %v", r)
		}
	}()
	resolved := s.resolver.Resolve(path)
	return MediaCandidate{
		Path:      path,
		Filename:  name,
		Kind:      ClassifyMedia(name),
		Timestamp: resolved.Time,
		Source:    resolved.Source,
	}, nil
}

// SelectOldest returns the oldest candidate whose path is not excluded.
// A missing directory or an empty candidate set is logged and reported as false.
func (s *Selector) SelectOldest(exclude func(path string) bool) (MediaCandidate, bool) {
	candidates, err := s.Scan()
	if err != nil {
		if errors.Is(err, ErrDirectory) {
			s.logger.Error("cannot scan source directory", "dir", s.dir, "error", err)
		} else {
			s.logger.Error("scan failed", "dir", s.dir, "error", err)
		}
		return MediaCandidate{}, false
	}

	for _, c := range candidates {
		if exclude != nil && exclude(c.Path) {
			continue
		}
		s.logger.Info("oldest file found",
			"file", c.Filename,
			"kind", c.Kind,
			"created", c.Timestamp.Format("2006-01-02 15:04:05 MST"),
			"source", c.Source)
		return c, true
	}

	s.logger.Info("no valid media found", "dir", s.dir)
	return MediaCandidate{}, false
}
