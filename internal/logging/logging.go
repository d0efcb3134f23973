package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options configures the process-wide logger.
type Options struct {
	Level      string
	Format     string
	File       string
	Production bool
}

// Setup configures the logrus standard logger and returns a closer for the log file, if any.
func Setup(opts Options) (func() error, error) {
	return Configure(logrus.StandardLogger(), opts, os.Stdout)
}

// Configure applies opts to logger, writing to stdout and optionally a file.
func Configure(logger *logrus.Logger, opts Options, stdout io.Writer) (func() error, error) {
	level := logrus.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		parsed, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	if opts.Production || strings.EqualFold(opts.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	closer := func() error { return nil }
	out := stdout
	if path := strings.TrimSpace(opts.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(stdout, file)
		closer = file.Close
	}
	logger.SetOutput(out)
	return closer, nil
}
