package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestMaskPhone(t *testing.T) {
	cases := map[string]string{
		"+971501111111": "+9715******11",
		"+23761":        "******",
		"":              "",
	}
	for in, want := range cases {
		if got := MaskPhone(in); got != want {
			t.Fatalf("MaskPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewWithWriterHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %s", buf.String())
	}

	logger.Warn("kept", "phone", MaskPhone("+971501111111"))
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json log line: %v", err)
	}
	if line["msg"] != "kept" || line["phone"] != "+9715******11" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestNewDefaultsToInfoOnBadLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "loud")
	logger.Debug("dropped")
	logger.Info("kept")
	if !bytes.Contains(buf.Bytes(), []byte(`"kept"`)) || bytes.Contains(buf.Bytes(), []byte("dropped")) {
		t.Fatalf("expected info level fallback, got %s", buf.String())
	}
}
