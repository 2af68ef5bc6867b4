package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var chicago = mustLoadLocation("America/Chicago")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func writeTestFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("data "+name), 0644))
	return path
}

// fixedTimes is a timestamp strategy answering from a filename table
func fixedTimes(times map[string]time.Time) TimestampStrategy {
	return TimestampStrategy{
		Source: SourceMetadata,
		Resolve: func(path string) (time.Time, error) {
			t, ok := times[filepath.Base(path)]
			if !ok {
				return time.Time{}, ErrTimestampUnavailable
			}
			return t, nil
		},
	}
}

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 12, 0, 0, 0, chicago)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type upload struct {
	Kind    MediaKind
	Path    string
	Caption string
	Content string
}

// fakeSession records uploads; failOn makes uploads of matching base names fail
type fakeSession struct {
	mu      sync.Mutex
	uploads []upload
	failOn  map[string]bool
}

func (s *fakeSession) record(kind MediaKind, path, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, _ := os.ReadFile(path)
	s.uploads = append(s.uploads, upload{Kind: kind, Path: path, Caption: caption, Content: string(data)})
	if s.failOn[filepath.Base(path)] {
		return fmt.Errorf("status 400: media rejected")
	}
	return nil
}

func (s *fakeSession) UploadPhoto(ctx context.Context, path, caption string) error {
	return s.record(KindImage, path, caption)
}

func (s *fakeSession) UploadVideo(ctx context.Context, path, caption string) error {
	return s.record(KindVideo, path, caption)
}

type fakePlatform struct {
	session *fakeSession
	err     error
	logins  int
}

func (p *fakePlatform) Login(ctx context.Context) (Session, error) {
	p.logins++
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

// fakeTransformer copies src to dst with a marker prefix, or fails
type fakeTransformer struct {
	marker string
	err    error
	calls  int
}

func (f *fakeTransformer) apply(src, dst string) error {
	f.calls++
	if f.err != nil {
		// leave a partial artifact behind, like a crashed encoder would
		_ = os.WriteFile(dst, []byte("partial"), 0644)
		return f.err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append([]byte(f.marker), data...), 0644)
}

func (f *fakeTransformer) Orient(ctx context.Context, src, dst string) error {
	return f.apply(src, dst)
}

func (f *fakeTransformer) Transcode(ctx context.Context, src, dst string) error {
	return f.apply(src, dst)
}
