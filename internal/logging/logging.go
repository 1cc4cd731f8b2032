// Package logging provides the shared structured logger. Log records go to
// stderr as text and, when a directory is configured, to a rotated JSON file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps slog with the log file location and process start time.
type Logger struct {
	*slog.Logger
	LogFile string
	Start   time.Time
}

// New builds a logger at the given level. If dir is non-empty, records are
// additionally written to a size-rotated JSON file under it.
func New(level, dir string) *Logger {
	lvl := slog.LevelInfo
	switch level {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "%s: invalid log level, using info\n", level)
	}

	var w io.Writer = os.Stderr
	logFile := ""
	if dir != "" {
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "globe-replay.slog"),
			MaxSize:    32, // MB
			MaxBackups: 2,
			Compress:   true,
		}
		if lvl == slog.LevelDebug {
			lj.MaxSize = 256
		}
		logFile = lj.Filename
		w = io.MultiWriter(os.Stderr, lj)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	l := &Logger{
		Logger:  slog.New(h),
		LogFile: logFile,
		Start:   time.Now(),
	}

	l.Info("logger started",
		slog.String("GOARCH", runtime.GOARCH),
		slog.String("GOOS", runtime.GOOS),
		slog.Int("NumCPUs", runtime.NumCPU()))

	return l
}

// Infof logs an informational message with printf-style formatting.
func (l *Logger) Infof(msg string, args ...any) {
	if l != nil {
		l.Logger.Info(fmt.Sprintf(msg, args...))
	}
}

// Warnf logs a warning with printf-style formatting. Safe on a nil logger,
// in which case the record goes to the slog default.
func (l *Logger) Warnf(msg string, args ...any) {
	if l == nil {
		slog.Warn(fmt.Sprintf(msg, args...))
		return
	}
	l.Logger.Warn(fmt.Sprintf(msg, args...))
}

// Errorf logs an error with printf-style formatting. Safe on a nil logger.
func (l *Logger) Errorf(msg string, args ...any) {
	if l == nil {
		slog.Error(fmt.Sprintf(msg, args...))
		return
	}
	l.Logger.Error(fmt.Sprintf(msg, args...))
}

// With returns a logger that attaches the given attributes to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:  l.Logger.With(args...),
		LogFile: l.LogFile,
		Start:   l.Start,
	}
}
