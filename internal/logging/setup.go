package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Level string
	// File, when set, receives a size-rotated copy of the output.
	File string
}

// ParseLevel maps a textual level to slog.Level.
func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", value)
	}
	return level, nil
}

// NewServerLogger returns a JSON logger writing to w and, optionally, a
// rotated file. The returned closer releases the file.
func NewServerLogger(w io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	out, closer, err := withRotatedFile(w, opts.File)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

// NewCLILogger returns a human-readable logger for terminal use.
func NewCLILogger(w io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	out, closer, err := withRotatedFile(w, opts.File)
	if err != nil {
		return nil, nil, err
	}
	handler := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		Level:           charmlog.Level(level),
		Prefix:          "weekwisectl",
	})
	return slog.New(handler), closer, nil
}

func withRotatedFile(w io.Writer, path string) (io.Writer, io.Closer, error) {
	if w == nil {
		w = os.Stderr
	}
	if path == "" {
		return w, nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("logging: create log directory: %w", err)
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return io.MultiWriter(w, file), file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
