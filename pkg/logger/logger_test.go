package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInfoCF_WritesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, false)
	SetLevel(INFO)
	defer Init(nil, false)

	InfoCF("scheduler", "topic posted", map[string]any{"channel_id": "42"})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["component"] != "scheduler" {
		t.Fatalf("expected component scheduler, got %v", entry["component"])
	}
	if entry["channel_id"] != "42" {
		t.Fatalf("expected channel_id field, got %v", entry["channel_id"])
	}
	if entry["level"] != "info" {
		t.Fatalf("expected info level, got %v", entry["level"])
	}
}

func TestSetLevel_FiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, false)
	SetLevel(WARN)
	defer func() {
		SetLevel(INFO)
		Init(nil, false)
	}()

	DebugC("judge", "hidden")
	InfoC("judge", "hidden too")
	WarnC("judge", "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("expected warn line, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DEBUG,
		" WARN ":  WARN,
		"warning": WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
