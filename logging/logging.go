// Package logging contains the structured logger used throughout meshproc. Entries are built
// as zap entries and fanned out to appenders: the console for the CLI, the testing.TB for tests
// and an in memory observer when a test wants to assert on what was logged.
package logging

import (
	"io"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// DefaultTimeFormatStr is the timestamp layout of test log lines.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// NewLoggerConfig returns the zap config whose encoder settings console output uses: no
// stacktraces, ISO8601 timestamps and colored levels.
func NewLoggerConfig() zap.Config {
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a logger that outputs Info+ logs to stdout in UTC.
func NewLogger(name string) Logger {
	return &impl{name, NewAtomicLevelAt(INFO), true, []Appender{NewStdoutAppender()}}
}

// NewDebugLogger returns a logger that outputs Debug+ logs to stdout in UTC.
func NewDebugLogger(name string) Logger {
	return &impl{name, NewAtomicLevelAt(DEBUG), true, []Appender{NewStdoutAppender()}}
}

// NewWriterLogger returns a logger at level writing to w, e.g. stderr for a CLI whose stdout
// carries results.
func NewWriterLogger(name string, level Level, w io.Writer) Logger {
	return &impl{name, NewAtomicLevelAt(level), true, []Appender{NewWriterAppender(w)}}
}

// NewBlankLogger returns a Debug+ logger with no outputs; add them with AddAppender.
func NewBlankLogger(name string) Logger {
	return &impl{name, NewAtomicLevelAt(DEBUG), true, []Appender{}}
}

// NewTestLogger returns a Debug+ logger that writes through tb.Log in local time.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also records entries in memory.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	logger := &impl{"", NewAtomicLevelAt(DEBUG), false, []Appender{}}
	logger.AddAppender(NewTestAppender(tb))

	core, logs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	logger.AddAppender(core)
	return logger, logs
}
