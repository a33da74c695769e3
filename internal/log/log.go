// Package log builds the process logger from configuration.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level  string    // logrus level name; "warn" when empty
	Format string    // "text" or "json"
	File   string    // Rotating log file, optional
	Debug  bool      // Forces debug level
	Stderr io.Writer // Console output; os.Stderr when nil
}

// Rotation limits for the log file.
const (
	maxSizeMB  = 10
	maxBackups = 3
	maxAgeDays = 28
)

// New returns a logger writing to stderr and, when File is set, to a
// rotating file. The returned closer releases the file.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	lvl := opts.Level
	if lvl == "" {
		lvl = "warn"
	}
	parsed, err := logrus.ParseLevel(lvl)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	if opts.Debug {
		parsed = logrus.DebugLevel
	}
	logger.SetLevel(parsed)

	switch strings.ToLower(opts.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	out := opts.Stderr
	if out == nil {
		out = os.Stderr
	}
	if opts.File == "" {
		logger.SetOutput(out)
		return logger, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(out, file))
	return logger, file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
