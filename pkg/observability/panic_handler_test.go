package observability

import (
	"bytes"
	"strings"
	"testing"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	func() {
		defer RecoverPanic(logger, "test job")
		panic("boom")
	}()

	out := buf.String()
	if !strings.Contains(out, "boom") {
		t.Errorf("expected panic value in log output, got %s", out)
	}
	if !strings.Contains(out, "test job") {
		t.Errorf("expected context in log output, got %s", out)
	}
}

func TestRecoverPanicWithCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	called := false
	func() {
		defer RecoverPanicWithCallback(logger, "test job", func() { called = true })
		panic("boom")
	}()

	if !called {
		t.Error("callback not invoked after panic")
	}

	// No panic, no callback.
	called = false
	func() {
		defer RecoverPanicWithCallback(logger, "test job", func() { called = true })
	}()
	if called {
		t.Error("callback must not run without a panic")
	}
}
