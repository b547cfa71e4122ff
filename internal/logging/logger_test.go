package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsoleHandlerFormatsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.With("component", "matcher").Info("candidate selected", "asset", "IMG_0001.JPG", "score", 0.92)

	line := buf.String()
	if !strings.Contains(line, "INFO matcher: candidate selected") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "asset=IMG_0001.JPG") || !strings.Contains(line, "score=0.92") {
		t.Fatalf("missing attrs in line: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Warn("skip", "reason", "already stacked correctly")

	if !strings.Contains(buf.String(), `reason="already stacked correctly"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("upload complete", "asset_id", "abc")

	out := buf.String()
	if !strings.Contains(out, `"msg":"upload complete"`) || !strings.Contains(out, `"ts":`) {
		t.Fatalf("unexpected JSON line: %q", out)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := New(Options{Format: "logfmt"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
