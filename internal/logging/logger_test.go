package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRespectsVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf})

	logger.Debug("hidden")
	logger.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message logged at info level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("info message missing")
	}

	buf.Reset()
	verbose := New(Options{Verbose: true, Writer: &buf})
	verbose.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug message missing at verbose level")
	}
}

func TestNewJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{JSON: true, Writer: &buf})

	logger.Info("structured", "tool", "run_sql")

	out := buf.String()
	if !strings.HasPrefix(out, "{") {
		t.Errorf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"tool":"run_sql"`) {
		t.Errorf("expected attribute in JSON output, got %q", out)
	}
}

func TestSlogAdapterWith(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(New(Options{Writer: &buf}))

	child := adapter.With("dataset", "hospitals")
	child.Info("fetching")

	if !strings.Contains(buf.String(), "dataset=hospitals") {
		t.Errorf("expected bound attribute in output, got %q", buf.String())
	}
}

func TestNopLogger(t *testing.T) {
	nop := NewNopLogger()
	// Must not panic and With must return a usable logger.
	nop.Debug("a")
	nop.Info("b")
	nop.Warn("c")
	nop.Error("d")
	nop.With("k", "v").Info("e")
}
