package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantDebug bool
		wantJSON  bool
	}{
		{"json info", "info", "json", false, true},
		{"json debug", "debug", "json", true, true},
		{"text debug", "debug", "text", true, false},
		{"unknown level", "verbose", "json", false, true},
		{"unknown format", "info", "xml", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := newLogger(&buf, tt.level, tt.format)

			l.Debug("debug message")
			if got := strings.Contains(buf.String(), "debug message"); got != tt.wantDebug {
				t.Errorf("Expected debug logged=%v, got %v", tt.wantDebug, got)
			}

			buf.Reset()
			l.Info("info message", "run_id", "abc")
			line := strings.TrimSpace(buf.String())

			var entry map[string]any
			isJSON := json.Unmarshal([]byte(line), &entry) == nil
			if isJSON != tt.wantJSON {
				t.Errorf("Expected JSON=%v, got output %q", tt.wantJSON, line)
			}
			if !strings.Contains(line, "abc") {
				t.Errorf("Expected attribute in output, got %q", line)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	cmd, out := newTestCommand("")
	versionCmd.Run(cmd, nil)

	if got := out.String(); got != "circlez version "+version+"\n" {
		t.Errorf("Unexpected version output %q", got)
	}
}
