package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the logger implementation and sink.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is "text", "json" (slog) or "zerolog".
	Format string
	// File, when set, receives the logs with size based rotation.
	File      string
	MaxSizeMB int
	// Service is attached to every record.
	Service string
}

// New builds a Logger from opts. The returned closer releases the log file,
// if any.
func New(opts Options) (Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		out, closer = lj, lj
	}

	l, err := NewWithWriter(opts, out)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return l, closer, nil
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(opts Options, out io.Writer) (Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(opts.Format) {
	case "", "text":
		h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
		return NewSlogLogger(slog.New(h).With("service", opts.Service)), nil
	case "json":
		h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
		return NewSlogLogger(slog.New(h).With("service", opts.Service)), nil
	case "zerolog":
		zl := zerolog.New(out).Level(zerologLevel(level)).With().
			Str("service", opts.Service).
			Timestamp().
			Logger()
		return NewZerologLogger(zl), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l <= slog.LevelDebug:
		return zerolog.DebugLevel
	case l <= slog.LevelInfo:
		return zerolog.InfoLevel
	case l <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
