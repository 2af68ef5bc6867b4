package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// QueueReport is the pending posting order of the source directory
type QueueReport struct {
	Dir         string           `json:"dir"`
	Total       int              `json:"total"`
	Images      int              `json:"images"`
	Videos      int              `json:"videos"`
	Unsupported int              `json:"unsupported"`
	Candidates  []MediaCandidate `json:"candidates"`
	ScannedAt   time.Time        `json:"scanned_at"`
}

// BuildQueue scans the selector's directory; limit > 0 truncates the listing
// but not the counts.
func BuildQueue(s *Selector, limit int) (*QueueReport, error) {
	candidates, err := s.Scan()
	if err != nil {
		return nil, err
	}

	report := &QueueReport{
		Dir:       s.Dir(),
		Total:     len(candidates),
		ScannedAt: time.Now(),
	}
	for _, c := range candidates {
		switch c.Kind {
		case KindImage:
			report.Images++
		case KindVideo:
			report.Videos++
		default:
			report.Unsupported++
		}
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	report.Candidates = candidates
	return report, nil
}

// DisplayQueue writes the report as "table" or "json".
func DisplayQueue(w io.Writer, report *QueueReport, format string) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	fmt.Fprintf(w, "=== Posting queue: %s ===\n", report.Dir)
	fmt.Fprintf(w, "%d files (%d images, %d videos, %d unsupported)\n\n",
		report.Total, report.Images, report.Videos, report.Unsupported)
	if len(report.Candidates) == 0 {
		fmt.Fprintln(w, "Nothing to post.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFILE\tKIND\tCREATED\tSOURCE")
	for i, c := range report.Candidates {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, c.Filename, c.Kind, c.Timestamp.Format("2006-01-02 15:04:05 MST"), c.Source)
	}
	return tw.Flush()
}
