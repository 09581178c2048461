// Package testutil provides shared test helpers.
package testutil

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
)

// NewTestLogger returns a logger that writes to t.Log().
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// CaptureLogger records log output so tests can assert on warnings and errors.
type CaptureLogger struct {
	*slog.Logger

	mu  sync.Mutex
	buf bytes.Buffer
}

func NewCaptureLogger() *CaptureLogger {
	c := &CaptureLogger{}
	c.Logger = slog.New(slog.NewTextHandler(lockedWriter{c}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	return c
}

func (c *CaptureLogger) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

type lockedWriter struct {
	c *CaptureLogger
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	return w.c.buf.Write(p)
}
