package internal

import (
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	mp4 "github.com/abema/go-mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeMP4 writes a minimal moov/mvhd container with the given creation time
func writeMP4(t *testing.T, path string, created time.Time) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := mp4.NewWriter(f)
	_, err = w.StartBox(&mp4.BoxInfo{Type: mp4.BoxTypeMoov()})
	require.NoError(t, err)

	bi, err := w.StartBox(&mp4.BoxInfo{Type: mp4.BoxTypeMvhd()})
	require.NoError(t, err)
	_, err = mp4.Marshal(w, &mp4.Mvhd{
		CreationTimeV0:     uint32(created.Unix() + appleEpochOffset),
		ModificationTimeV0: uint32(created.Unix() + appleEpochOffset),
		Timescale:          1000,
		DurationV0:         1000,
		Rate:               0x00010000,
		Volume:             0x0100,
		NextTrackID:        2,
	}, bi.Context)
	require.NoError(t, err)
	_, err = w.EndBox()
	require.NoError(t, err)

	_, err = w.EndBox()
	require.NoError(t, err)
}

func TestVideoCreationTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	created := time.Date(2023, 8, 9, 14, 15, 16, 0, time.UTC)
	writeMP4(t, path, created)

	got, err := videoCreationTime(path)
	require.NoError(t, err)
	assert.True(t, got.Equal(created))
}

func TestVideoCreationTime_ZeroIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mov")
	writeMP4(t, path, time.Unix(-appleEpochOffset, 0))

	_, err := NewMetadataReader(chicago, false).CaptureTime(path)
	assert.ErrorIs(t, err, ErrTimestampUnavailable)
}

func TestCaptureTime_VideoViaMetadataReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CLIP.MOV")
	created := time.Date(2023, 8, 9, 14, 15, 16, 0, time.UTC)
	writeMP4(t, path, created)

	got, err := NewMetadataReader(chicago, false).CaptureTime(path)
	require.NoError(t, err)
	assert.True(t, got.Equal(created))
}

func TestCaptureTime_ImageWithoutExif(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noexif.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))
	require.NoError(t, f.Close())

	_, err = NewMetadataReader(chicago, false).CaptureTime(path)
	assert.ErrorIs(t, err, ErrTimestampUnavailable)
}

func TestCaptureTime_UnsupportedKind(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "notes.txt")

	_, err := NewMetadataReader(chicago, false).CaptureTime(path)
	assert.ErrorIs(t, err, ErrTimestampUnavailable)
}

func TestMetadataReader_CloseWithoutExifTool(t *testing.T) {
	m := NewMetadataReader(nil, true)
	assert.NoError(t, m.Close())
}
