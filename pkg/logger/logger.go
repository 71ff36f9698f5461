// Package logger provides the broker's logging facade: a thin wrapper
// around logrus that both the CLI and the daemon construct from the same
// Config, adapted from the teacher's pkg/logger factory (logrus, text by
// default, JSON when asked, caller info always on).
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the interface the rest of the broker depends on, so tests can
// swap in a recording fake.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// logrusLogger implements Logger over *logrus.Logger.
type logrusLogger struct {
	l    *logrus.Logger
	file io.Closer
}

// Config controls how a Logger is built.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // text|json
	Output io.Writer // additional output, e.g. os.Stderr for the CLI

	// RotateFile, when set, routes logs through lumberjack so a
	// long-lived daemon process doesn't grow an unbounded log file.
	RotateFile string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a Logger from cfg.
func New(cfg Config) (Logger, error) {
	l := logrus.New()

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.SetLevel(parsed)
	l.SetReportCaller(true)

	switch strings.ToLower(firstNonEmpty(cfg.Format, "text")) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettifyCaller,
		})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettifyCaller,
		})
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	var writers []io.Writer
	var closer io.Closer

	if cfg.RotateFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.RotateFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rot := &lumberjack.Logger{
			Filename:   cfg.RotateFile,
			MaxSize:    firstPositive(cfg.MaxSizeMB, 50),
			MaxBackups: firstPositive(cfg.MaxBackups, 5),
			MaxAge:     firstPositive(cfg.MaxAgeDays, 14),
			Compress:   true,
		}
		writers = append(writers, rot)
		closer = rot
	}
	if cfg.Output != nil {
		writers = append(writers, cfg.Output)
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	l.SetOutput(io.MultiWriter(writers...))

	return &logrusLogger{l: l, file: closer}, nil
}

// Close releases any file handles held by the logger (e.g. the daemon's
// rotated log file). Safe to call on a CLI logger with nothing to close.
func Close(log Logger) error {
	if rl, ok := log.(*logrusLogger); ok && rl.file != nil {
		return rl.file.Close()
	}
	return nil
}

func (r *logrusLogger) Infof(format string, args ...interface{})  { r.l.Infof(format, args...) }
func (r *logrusLogger) Warnf(format string, args ...interface{})  { r.l.Warnf(format, args...) }
func (r *logrusLogger) Errorf(format string, args ...interface{}) { r.l.Errorf(format, args...) }
func (r *logrusLogger) Debugf(format string, args ...interface{}) { r.l.Debugf(format, args...) }

func prettifyCaller(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

func firstNonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func firstPositive(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
