package internal

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Logger fans every record out to the console and to a persistent log file.
type Logger struct {
	*slog.Logger
	f *os.File
}

// NewLogger appends to path and mirrors records to console.
func NewLogger(path string, console io.Writer, debug bool) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}

	handler := slogmulti.Fanout(
		slog.NewTextHandler(console, opts),
		slog.NewTextHandler(f, opts),
	)
	return &Logger{Logger: slog.New(handler), f: f}, nil
}

func (l *Logger) Close() error {
	return l.f.Close()
}

// discardLogger is used when a component is built without a logger
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
