package internal

import (
	"fmt"
	"os"
	"sync"
	"time"

	mp4 "github.com/abema/go-mp4"
	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
)

const exifDateLayout = "2006:01:02 15:04:05"

// appleEpochOffset is the number of seconds between the QuickTime epoch
// (1904-01-01 UTC) and the Unix epoch.
const appleEpochOffset = 2082844800

// MetadataReader extracts capture timestamps embedded in media files.
// EXIF wall-clock values carry no zone and are read in loc.
type MetadataReader struct {
	loc         *time.Location
	useExifTool bool

	mu sync.Mutex
	et *exiftool.Exiftool
}

func NewMetadataReader(loc *time.Location, useExifTool bool) *MetadataReader {
	if loc == nil {
		loc = time.UTC
	}
	return &MetadataReader{loc: loc, useExifTool: useExifTool}
}

// CaptureTime is a TimestampFunc reading EXIF for images and the mvhd box
// for videos, falling back to exiftool when enabled.
func (m *MetadataReader) CaptureTime(path string) (time.Time, error) {
	var (
		t   time.Time
		err error
	)
	switch ClassifyMedia(path) {
	case KindImage:
		t, err = m.exifDateOriginal(path)
	case KindVideo:
		t, err = videoCreationTime(path)
	default:
		return time.Time{}, fmt.Errorf("%w: no metadata reader for %s", ErrTimestampUnavailable, path)
	}
	if err == nil {
		return t, nil
	}

	if m.useExifTool {
		if tFallback, found := m.fallbackExifTool(path); found {
			return tFallback, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %v", ErrTimestampUnavailable, err)
}

// Close stops the exiftool process if it was started.
func (m *MetadataReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.et == nil {
		return nil
	}
	err := m.et.Close()
	m.et = nil
	return err
}

// exifDateOriginal extracts the DateTimeOriginal from EXIF metadata
func (m *MetadataReader) exifDateOriginal(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, err
	}

	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, err
	}

	dateStr, err := tag.StringVal()
	if err != nil {
		return time.Time{}, err
	}

	return time.ParseInLocation(exifDateLayout, dateStr, m.loc)
}

// videoCreationTime reads moov/mvhd creation time from an mp4/mov container
func videoCreationTime(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	boxes, err := mp4.ExtractBoxesWithPayload(f, nil, []mp4.BoxPath{
		{mp4.BoxTypeMoov(), mp4.BoxTypeMvhd()},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("read mp4 structure: %w", err)
	}

	for _, box := range boxes {
		mvhd, ok := box.Payload.(*mp4.Mvhd)
		if !ok {
			continue
		}
		creation := mvhd.GetCreationTime()
		if creation == 0 {
			return time.Time{}, fmt.Errorf("mvhd creation time is zero")
		}
		t := time.Unix(int64(creation)-appleEpochOffset, 0).UTC()
		if t.Year() < 1970 {
			return time.Time{}, fmt.Errorf("mvhd creation time predates unix epoch")
		}
		return t, nil
	}

	return time.Time{}, fmt.Errorf("mvhd box not found")
}

func (m *MetadataReader) ensureExifTool() (*exiftool.Exiftool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.et != nil {
		return m.et, nil
	}
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, err
	}
	m.et = et
	return m.et, nil
}

func (m *MetadataReader) fallbackExifTool(path string) (time.Time, bool) {
	et, err := m.ensureExifTool()
	if err != nil {
		return time.Time{}, false
	}

	for _, fileInfo := range et.ExtractMetadata(path) {
		if fileInfo.Err != nil {
			continue
		}
		for _, key := range []string{"DateTimeOriginal", "CreateDate", "MediaCreateDate"} {
			dateStr, err := fileInfo.GetString(key)
			if err != nil {
				continue
			}
			if t, err := time.ParseInLocation(exifDateLayout, dateStr, m.loc); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
