package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zapcore"
)

// Appender is an output for log entries. A zapcore.Core, such as the observer used by tests,
// satisfies it.
type Appender interface {
	Write(zapcore.Entry, []zapcore.Field) error
	Sync() error
}

// ConsoleAppender writes entries through zap's console encoder.
type ConsoleAppender struct {
	mu      sync.Mutex
	out     io.Writer
	encoder zapcore.Encoder
}

// NewStdoutAppender returns a ConsoleAppender writing to stdout with colored levels.
func NewStdoutAppender() *ConsoleAppender {
	return NewWriterAppender(os.Stdout)
}

// NewWriterAppender returns a ConsoleAppender writing to w.
func NewWriterAppender(w io.Writer) *ConsoleAppender {
	return &ConsoleAppender{
		out:     w,
		encoder: zapcore.NewConsoleEncoder(NewLoggerConfig().EncoderConfig),
	}
}

// Write encodes and writes one entry.
func (app *ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := app.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	app.mu.Lock()
	defer app.mu.Unlock()
	_, err = app.out.Write(buf.Bytes())
	return err
}

// Sync flushes the output if it supports it.
func (app *ConsoleAppender) Sync() error {
	if syncer, ok := app.out.(interface{ Sync() error }); ok {
		//nolint:errcheck
		syncer.Sync()
	}
	return nil
}

type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender that logs through tb.Log so output is attributed to the
// running test.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	parts := []string{
		entry.Time.Format(DefaultTimeFormatStr),
		strings.ToUpper(entry.Level.String()),
		entry.LoggerName,
	}
	if entry.Caller.Defined {
		parts = append(parts, entry.Caller.TrimmedPath())
	}
	parts = append(parts, entry.Message)
	if len(fields) > 0 {
		// the json encoder keeps fields in call order
		enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
		buf, err := enc.EncodeEntry(zapcore.Entry{}, fields)
		if err != nil {
			tapp.tb.Log(strings.Join(parts, "\t"))
			return err
		}
		parts = append(parts, buf.String())
		buf.Free()
	}
	tapp.tb.Log(strings.Join(parts, "\t"))
	return nil
}

func (tapp *testAppender) Sync() error {
	return nil
}
