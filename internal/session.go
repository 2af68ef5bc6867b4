package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const manifestName = "manifest.jsonl"

// RunSession appends one JSON line per posting event to the archive's manifest.
// All methods are no-ops on a nil *RunSession, which is what dry runs use.
type RunSession struct {
	ID           string   // Session ID (timestamp: 2025-01-15-103045)
	ManifestPath string   // Full path to manifest.jsonl
	ManifestFile *os.File // Open file handle for manifest.jsonl
}

// ManifestEvent represents a single event in the manifest log
type ManifestEvent struct {
	Event   string `json:"event"`
	Ts      string `json:"ts"`
	Run     string `json:"run"`
	Src     string `json:"src,omitempty"`
	Dest    string `json:"dest,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Created string `json:"created,omitempty"`
	Source  string `json:"created_source,omitempty"`
	Error   string `json:"error,omitempty"`

	ErrorStage      string `json:"error_stage,omitempty"`
	ErrorSeverity   string `json:"error_severity,omitempty"`
	ErrorSuggestion string `json:"error_suggestion,omitempty"`

	// Run start/end fields
	Count   int    `json:"count,omitempty"`
	Delay   int    `json:"delay_seconds,omitempty"`
	OnError string `json:"on_error,omitempty"`
	Posted  int    `json:"posted,omitempty"`
	Skipped int    `json:"skipped,omitempty"`
	Failed  int    `json:"failed,omitempty"`
	State   string `json:"state,omitempty"`
}

// NewRunSession opens (or creates) dir/manifest.jsonl for appending.
func NewRunSession(dir string) (*RunSession, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}

	manifestPath := filepath.Join(dir, manifestName)
	manifestFile, err := os.OpenFile(manifestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest file: %w", err)
	}

	return &RunSession{
		ID:           time.Now().Format("2006-01-02-150405"),
		ManifestPath: manifestPath,
		ManifestFile: manifestFile,
	}, nil
}

func (s *RunSession) LogRunStart(cfg RunConfig) error {
	return s.writeEvent(ManifestEvent{
		Event:   "run_start",
		Count:   cfg.Count,
		Delay:   int(cfg.Delay.Seconds()),
		OnError: string(cfg.OnError),
	})
}

func (s *RunSession) LogPublished(c MediaCandidate) error {
	return s.writeEvent(candidateEvent("published", c))
}

func (s *RunSession) LogSkipped(c MediaCandidate) error {
	return s.writeEvent(candidateEvent("skipped", c))
}

func (s *RunSession) LogArchived(src, dest string) error {
	return s.writeEvent(ManifestEvent{Event: "archived", Src: src, Dest: dest})
}

// LogFailed logs a categorized failure with full details
func (s *RunSession) LogFailed(c MediaCandidate, procErr *ProcessError) error {
	event := candidateEvent("failed", c)
	event.Error = procErr.Err.Error()
	event.ErrorStage = string(procErr.Stage)
	event.ErrorSeverity = string(procErr.Severity)
	event.ErrorSuggestion = procErr.Suggestion
	return s.writeEvent(event)
}

func (s *RunSession) LogRunEnd(res RunResult) error {
	return s.writeEvent(ManifestEvent{
		Event:   "run_end",
		Posted:  res.Posted,
		Skipped: res.Skipped,
		Failed:  res.Failed,
		State:   res.State.String(),
	})
}

// Close closes the manifest file
func (s *RunSession) Close() error {
	if s == nil || s.ManifestFile == nil {
		return nil
	}
	return s.ManifestFile.Close()
}

func candidateEvent(name string, c MediaCandidate) ManifestEvent {
	return ManifestEvent{
		Event:   name,
		Src:     c.Path,
		Kind:    c.Kind.String(),
		Created: c.Timestamp.Format(time.RFC3339),
		Source:  string(c.Source),
	}
}

// writeEvent writes a manifest event as a JSON line
func (s *RunSession) writeEvent(event ManifestEvent) error {
	if s == nil {
		return nil
	}
	event.Ts = time.Now().UTC().Format(time.RFC3339)
	event.Run = s.ID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.ManifestFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to manifest: %w", err)
	}

	// Flush to ensure data is written
	return s.ManifestFile.Sync()
}
