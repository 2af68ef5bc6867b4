package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishFixture struct {
	srcDir  string
	tempDir string
	images  *fakeTransformer
	videos  *fakeTransformer
	session *fakeSession
	pub     *Publisher
}

func newPublishFixture(t *testing.T) *publishFixture {
	f := &publishFixture{
		srcDir:  t.TempDir(),
		tempDir: t.TempDir(),
		images:  &fakeTransformer{marker: "oriented:"},
		videos:  &fakeTransformer{marker: "transcoded:"},
		session: &fakeSession{failOn: map[string]bool{}},
	}
	f.pub = NewPublisher(f.images, f.videos, f.tempDir, nil)
	return f
}

func TestPublish_ImageUploadsOrientedCopy(t *testing.T) {
	f := newPublishFixture(t)
	path := writeTestFile(t, f.srcDir, "a.JPG")

	require.NoError(t, f.pub.Publish(context.Background(), f.session, path, "caption"))

	require.Len(t, f.session.uploads, 1)
	up := f.session.uploads[0]
	assert.Equal(t, KindImage, up.Kind)
	assert.Equal(t, "oriented:data a.JPG", up.Content)
	assert.Equal(t, "caption", up.Caption)
	assert.NotEqual(t, path, up.Path)
	assert.Empty(t, listDir(t, f.tempDir), "temp artifact must be removed")
	assert.FileExists(t, path)
}

func TestPublish_ImageOrientFailureUploadsOriginal(t *testing.T) {
	f := newPublishFixture(t)
	f.images.err = errors.New("decode failed")
	path := writeTestFile(t, f.srcDir, "a.png")

	require.NoError(t, f.pub.Publish(context.Background(), f.session, path, "caption"))

	require.Len(t, f.session.uploads, 1)
	assert.Equal(t, path, f.session.uploads[0].Path)
	assert.Equal(t, "data a.png", f.session.uploads[0].Content)
	assert.Empty(t, listDir(t, f.tempDir))
}

func TestPublish_VideoUploadsTranscode(t *testing.T) {
	f := newPublishFixture(t)
	path := writeTestFile(t, f.srcDir, "b.mov")

	require.NoError(t, f.pub.Publish(context.Background(), f.session, path, "caption"))

	require.Len(t, f.session.uploads, 1)
	up := f.session.uploads[0]
	assert.Equal(t, KindVideo, up.Kind)
	assert.Equal(t, "transcoded:data b.mov", up.Content)
	assert.Equal(t, ".mp4", up.Path[len(up.Path)-4:])
	assert.Empty(t, listDir(t, f.tempDir))
}

func TestPublish_TranscodeFailureIsFatalAndCleansUp(t *testing.T) {
	f := newPublishFixture(t)
	f.videos.err = errors.New("ffmpeg exited with code 1")
	path := writeTestFile(t, f.srcDir, "b.mp4")

	err := f.pub.Publish(context.Background(), f.session, path, "caption")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscode)
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, StageTranscode, procErr.Stage)
	assert.Equal(t, path, procErr.FilePath)
	assert.Empty(t, f.session.uploads)
	assert.Empty(t, listDir(t, f.tempDir), "partial transcode must be removed")
}

func TestPublish_UploadFailureWrapsAndCleansUp(t *testing.T) {
	f := newPublishFixture(t)
	path := writeTestFile(t, f.srcDir, "b.mp4")
	failing := &failingSession{err: errors.New("status 500")}

	err := f.pub.Publish(context.Background(), failing, path, "caption")

	assert.ErrorIs(t, err, ErrUpload)
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, StageUpload, procErr.Stage)
	assert.Contains(t, procErr.Error(), "status 500")
	assert.Empty(t, listDir(t, f.tempDir))
}

func TestPublish_ImageUploadFailureCleansUp(t *testing.T) {
	f := newPublishFixture(t)
	path := writeTestFile(t, f.srcDir, "a.jpeg")

	err := f.pub.Publish(context.Background(), &failingSession{err: errors.New("rejected")}, path, "caption")

	assert.ErrorIs(t, err, ErrUpload)
	assert.Empty(t, listDir(t, f.tempDir))
}

func TestPublish_UnsupportedFormat(t *testing.T) {
	f := newPublishFixture(t)
	path := writeTestFile(t, f.srcDir, "c.txt")

	err := f.pub.Publish(context.Background(), f.session, path, "caption")

	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Empty(t, f.session.uploads)
	assert.Zero(t, f.images.calls)
	assert.Zero(t, f.videos.calls)
	assert.Empty(t, listDir(t, f.tempDir))
}

type failingSession struct {
	err error
}

func (s *failingSession) UploadPhoto(ctx context.Context, path, caption string) error {
	return s.err
}

func (s *failingSession) UploadVideo(ctx context.Context, path, caption string) error {
	return s.err
}
