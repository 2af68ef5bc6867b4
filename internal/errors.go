package internal

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDirectory            = errors.New("invalid source directory")
	ErrUnsupportedFormat    = errors.New("unsupported media format")
	ErrTranscode            = errors.New("video transcode failed")
	ErrUpload               = errors.New("upload failed")
	ErrArchival             = errors.New("archival failed")
	ErrAuth                 = errors.New("authentication failed")
	ErrTimestampUnavailable = errors.New("timestamp not available")
)

// Stage names the step of the posting pipeline an error came from
type Stage string

const (
	StageSelect    Stage = "select"
	StageAuth      Stage = "auth"
	StageTranscode Stage = "transcode"
	StageUpload    Stage = "upload"
	StageArchive   Stage = "archive"
	StageUnknown   Stage = "unknown"
)

// ErrorSeverity indicates how critical the error is
type ErrorSeverity string

const (
	ErrorSeverityCritical ErrorSeverity = "critical" // Run cannot continue (auth, archive)
	ErrorSeverityError    ErrorSeverity = "error"    // This file failed (transcode, upload)
	ErrorSeverityWarning  ErrorSeverity = "warning"  // Recoverable (unsupported format, orientation)
)

// ProcessError is a categorized failure while handling one file
type ProcessError struct {
	FilePath   string
	Stage      Stage
	Severity   ErrorSeverity
	Err        error
	Suggestion string // User-friendly hint for the operator
}

func (e *ProcessError) Error() string {
	if e.FilePath == "" {
		return fmt.Sprintf("[%s/%s] %v", e.Severity, e.Stage, e.Err)
	}
	return fmt.Sprintf("[%s/%s] %s: %v", e.Severity, e.Stage, e.FilePath, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// NewProcessError wraps err and fills stage, severity and suggestion from the
// sentinel it wraps.
func NewProcessError(filePath string, err error) *ProcessError {
	if err == nil {
		return nil
	}
	var existing *ProcessError
	if errors.As(err, &existing) {
		return existing
	}

	pe := &ProcessError{FilePath: filePath, Err: err}
	switch {
	case errors.Is(err, ErrAuth):
		pe.Stage = StageAuth
		pe.Severity = ErrorSeverityCritical
		pe.Suggestion = "Check INSTA_USERNAME / INSTA_PASSWORD and that the gateway is reachable"
	case errors.Is(err, ErrArchival):
		pe.Stage = StageArchive
		pe.Severity = ErrorSeverityCritical
		pe.Suggestion = "Check permissions on the source and archive directories; the file was not moved"
	case errors.Is(err, ErrTranscode):
		pe.Stage = StageTranscode
		pe.Severity = ErrorSeverityError
		pe.Suggestion = "Check that ffmpeg is installed and the video is readable"
	case errors.Is(err, ErrUpload):
		pe.Stage = StageUpload
		pe.Severity = ErrorSeverityError
		pe.Suggestion = "The platform rejected the upload - check the log for the response body"
	case errors.Is(err, ErrUnsupportedFormat):
		pe.Stage = StageSelect
		pe.Severity = ErrorSeverityWarning
		pe.Suggestion = "File format not supported - it will be archived without posting"
	case errors.Is(err, ErrDirectory):
		pe.Stage = StageSelect
		pe.Severity = ErrorSeverityError
		pe.Suggestion = "Create the source directory or fix source_dir in the config"
	default:
		pe.Stage = StageUnknown
		pe.Severity = ErrorSeverityError
		pe.Suggestion = "Unexpected error - check logs for details"
	}
	return pe
}

// ErrorStats tracks failures during a run
type ErrorStats struct {
	Total       int
	Critical    int
	Errors      int
	Warnings    int
	ByStage     map[Stage]int
	LastErrors  []*ProcessError // Last 5 errors for quick diagnosis
	Consecutive int             // Consecutive failed publishes
}

func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ByStage:    make(map[Stage]int),
		LastErrors: make([]*ProcessError, 0, 5),
	}
}

func (s *ErrorStats) Add(err *ProcessError) {
	s.Total++
	s.Consecutive++
	s.ByStage[err.Stage]++

	switch err.Severity {
	case ErrorSeverityCritical:
		s.Critical++
	case ErrorSeverityError:
		s.Errors++
	case ErrorSeverityWarning:
		s.Warnings++
	}

	if len(s.LastErrors) >= 5 {
		s.LastErrors = s.LastErrors[1:]
	}
	s.LastErrors = append(s.LastErrors, err)
}

func (s *ErrorStats) ResetConsecutive() {
	s.Consecutive = 0
}

// ShouldAbort reports whether the failure pattern means the run should stop.
// maxConsecutive <= 0 disables the consecutive check.
func (s *ErrorStats) ShouldAbort(maxConsecutive int) (bool, string) {
	if s.Critical > 0 {
		return true, "critical error detected - aborting run"
	}
	if maxConsecutive > 0 && s.Consecutive >= maxConsecutive {
		return true, fmt.Sprintf("%d consecutive publish failures - likely systemic issue (auth expired, ffmpeg missing, network)", s.Consecutive)
	}
	return false, ""
}

// GenerateReport creates a human-readable failure report
func (s *ErrorStats) GenerateReport() string {
	var report strings.Builder

	report.WriteString(fmt.Sprintf("Run encountered %d errors:\n", s.Total))
	if s.Critical > 0 {
		report.WriteString(fmt.Sprintf("  critical: %d\n", s.Critical))
	}
	if s.Errors > 0 {
		report.WriteString(fmt.Sprintf("  errors:   %d\n", s.Errors))
	}
	if s.Warnings > 0 {
		report.WriteString(fmt.Sprintf("  warnings: %d\n", s.Warnings))
	}

	report.WriteString("Failed stages:\n")
	for stage, count := range s.ByStage {
		report.WriteString(fmt.Sprintf("  - %s: %d\n", stage, count))
	}

	report.WriteString("Recent errors:\n")
	for i, err := range s.LastErrors {
		report.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.FilePath))
		report.WriteString(fmt.Sprintf("   stage: %s | severity: %s\n", err.Stage, err.Severity))
		report.WriteString(fmt.Sprintf("   error: %v\n", err.Err))
		if err.Suggestion != "" {
			report.WriteString(fmt.Sprintf("   suggestion: %s\n", err.Suggestion))
		}
	}

	return report.String()
}
