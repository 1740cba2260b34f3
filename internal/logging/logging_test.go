package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) succeeded")
	}
}

func TestInitWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug, FormatJSON)
	defer InitWriter(&bytes.Buffer{}, LevelInfo, FormatText)

	Debug("ik skipped", "bone", "左足ＩＫ")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "ik skipped" || rec["bone"] != "左足ＩＫ" || rec["level"] != "DEBUG" {
		t.Errorf("record = %v", rec)
	}
	if _, ok := rec["time"].(string); !ok {
		t.Errorf("time = %v", rec["time"])
	}
}

func TestInitWriterLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelWarn, FormatText)
	defer InitWriter(&bytes.Buffer{}, LevelInfo, FormatText)

	Info("hidden")
	Warn("shown", "body", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "body=3") {
		t.Errorf("warn record missing: %s", out)
	}
}
