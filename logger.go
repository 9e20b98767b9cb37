package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the global structured logger. It discards everything until
// InitLogger runs.
var Log = slog.New(slog.DiscardHandler)

// logLevelVar allows changing the log level at runtime.
var logLevelVar slog.LevelVar

// InitLogger points Log at a size-rotated file under ~/.nooforge/logs.
// level: "error" (default), "warn", "info" or "debug". When console is set,
// records are also written to stderr. The returned closer flushes the file.
func InitLogger(level string, console bool) (io.Closer, error) {
	setLogLevelVar(level)

	logDir := LogDir()
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "nooforge.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}

	var w io.Writer = file
	if console {
		w = io.MultiWriter(os.Stderr, file)
	}
	Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &logLevelVar}))
	return file, nil
}

// SetLogLevel changes the log level at runtime without restarting.
func SetLogLevel(level string) {
	setLogLevelVar(level)
}

// GetLogLevel returns the current log level as a string.
func GetLogLevel() string {
	switch logLevelVar.Level() {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelInfo:
		return "info"
	case slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// LogDir returns the path to the log directory.
func LogDir() string {
	return DataPath("logs")
}

func setLogLevelVar(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logLevelVar.Set(slog.LevelDebug)
	case "info":
		logLevelVar.Set(slog.LevelInfo)
	case "warn", "warning":
		logLevelVar.Set(slog.LevelWarn)
	default:
		logLevelVar.Set(slog.LevelError)
	}
}
