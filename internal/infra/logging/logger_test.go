package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// setupTestLogger configures a logger with a custom writer for tests
func setupTestLogger(output *bytes.Buffer, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	SetLoggerForTest(zerolog.New(output).With().Timestamp().Logger().Level(lvl))
}

func TestInfoLogging(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "info")

	Info("test message", "foo", 42, "bar", true)

	out := buf.String()
	if !strings.Contains(out, "test message") {
		t.Error("Expected log message not found in output")
	}
	if !strings.Contains(out, `"foo":42`) || !strings.Contains(out, `"bar":true`) {
		t.Error("Expected key-value pairs not found in output")
	}
}

func TestErrorLogging_RendersErrorValues(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "error")

	Error("error occurred", "error", errors.New("png: invalid format"))

	if !strings.Contains(buf.String(), `"error":"png: invalid format"`) {
		t.Errorf("Error log output missing error text: %s", buf.String())
	}
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "info")

	Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected debug to be suppressed, got %q", buf.String())
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "warn")

	SetLogLevel("info")
	Info("should be visible")

	if !strings.Contains(buf.String(), "should be visible") {
		t.Error("Expected info log after SetLogLevel not found")
	}
}

func TestSetLogLevelFallbackAndDanglingKey(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "error")

	SetLogLevel("invalid-level")
	Info("hello", "k", "v", "dangling")
	Warn("warn", "n", 1)

	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, `"dangling":null`) {
		t.Fatalf("expected info output with dangling key, got %q", out)
	}
}

func TestInitLoggerWritesRotatingFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")
	InitLogger(logFile, 1, 10, 0, false, "info", false)
	Info("written to file", "k", "v")

	raw, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "written to file") {
		t.Fatalf("expected message in log file, got %q", string(raw))
	}
}
