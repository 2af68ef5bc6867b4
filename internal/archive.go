package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const archiveStampLayout = "20060102_150405"

// Archiver moves processed files out of the source directory, prefixing
// them with the time of archival.
type Archiver struct {
	SourceDir string
	DestDir   string

	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

func NewArchiver(sourceDir, destDir string, loc *time.Location, logger *slog.Logger) *Archiver {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Archiver{
		SourceDir: sourceDir,
		DestDir:   destDir,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
	}
}

// ArchiveName is the destination base name for filename archived at t.
func ArchiveName(t time.Time, filename string) string {
	return t.Format(archiveStampLayout) + "_" + filename
}

// Archive moves SourceDir/filename to DestDir/{YYYYMMDD_HHMMSS}_{filename}
// and returns the destination path.
func (a *Archiver) Archive(filename string) (string, error) {
	src := filepath.Join(a.SourceDir, filename)

	if _, err := os.Stat(src); err != nil {
		a.logger.Error("archive failed", "file", filename, "error", err)
		return "", NewProcessError(src, fmt.Errorf("%w: %v", ErrArchival, err))
	}

	if err := os.MkdirAll(a.DestDir, 0755); err != nil {
		a.logger.Error("archive failed", "file", filename, "dest", a.DestDir, "error", err)
		return "", NewProcessError(src, fmt.Errorf("%w: create %s: %v", ErrArchival, a.DestDir, err))
	}

	dest, err := freeArchivePath(filepath.Join(a.DestDir, ArchiveName(a.now().In(a.loc), filename)))
	if err != nil {
		a.logger.Error("archive failed", "file", filename, "dest", a.DestDir, "error", err)
		return "", NewProcessError(src, fmt.Errorf("%w: %v", ErrArchival, err))
	}

	if err := moveFile(src, dest); err != nil {
		a.logger.Error("archive failed", "file", filename, "dest", dest, "error", err)
		return "", NewProcessError(src, fmt.Errorf("%w: move to %s: %v", ErrArchival, dest, err))
	}

	a.logger.Info("moved file", "file", filename, "dest", dest)
	return dest, nil
}

// moveFile renames src to dest, copying across filesystems when needed
func moveFile(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFileAtomic(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

// freeArchivePath returns dest, or dest with _2, _3... before the extension
// when that name is taken.
func freeArchivePath(dest string) (string, error) {
	ext := filepath.Ext(dest)
	base := dest[:len(dest)-len(ext)]
	try := dest
	for i := 2; ; i++ {
		_, err := os.Lstat(try)
		if errors.Is(err, os.ErrNotExist) {
			return try, nil
		}
		if err != nil {
			return "", fmt.Errorf("check %s: %w", try, err)
		}
		try = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
}

// copyFileAtomic copies a file atomically (copy temp → rename)
func copyFileAtomic(src, dest string) error {
	tmp := dest + ".tmp"
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, dest)
}
