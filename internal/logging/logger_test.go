package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger_UsesJSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(Options{Level: "debug", Writer: &buf, Component: "firexview"})
	lg.Debug("boot", "k", "v")

	out := strings.TrimSpace(buf.String())
	if !strings.Contains(out, `"level":"DEBUG"`) {
		t.Fatalf("expected DEBUG level, got %s", out)
	}
	if !strings.Contains(out, `"component":"firexview"`) {
		t.Fatalf("expected component field, got %s", out)
	}
}

func TestNewLogger_DefaultLevelDropsDebug(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(Options{Level: "bogus", Writer: &buf})
	lg.Debug("hidden")
	lg.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered at info level, got %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("expected warn line, got %s", out)
	}
}

func TestNewLogger_ModuleChild(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(Options{Writer: &buf, Component: "firexview"})
	Module(lg, "correlator").Info("ready")

	out := buf.String()
	if !strings.Contains(out, `"module":"correlator"`) || !strings.Contains(out, `"component":"firexview"`) {
		t.Fatalf("expected component and module fields, got %s", out)
	}
}
