// Package logging builds the process logger: a console handler plus an
// optional JSON file sink, fanned out with slog-multi.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Options configure New.
type Options struct {
	Level  string    // debug, info, warn, error
	Format string    // text or json
	File   string    // optional path; entries are appended as JSON lines
	Writer io.Writer // console destination, defaults to stderr
}

// Logger is the built logger plus the handles needed to retune or close it.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
	file  *os.File
}

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// New builds a Logger from opts.
func New(opts Options) (*Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	level := new(slog.LevelVar)
	level.Set(lvl)

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		handlers = append(handlers, slog.NewTextHandler(w, ho))
	case "json":
		handlers = append(handlers, slog.NewJSONHandler(w, ho))
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	var f *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err = os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, ho))
	}

	return &Logger{
		Logger: slog.New(slogmulti.Fanout(handlers...)),
		Level:  level,
		file:   f,
	}, nil
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
