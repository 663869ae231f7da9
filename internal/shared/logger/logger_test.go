package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestNewWithOptions_JSONLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(&buf, Options{Level: "warn", Format: "json"})

	log.Info().Msg("dropped")
	log.Warn().Str("event", "kept").Msg("visible")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %s", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["event"] != "kept" {
		t.Errorf("event = %v, want kept", entry["event"])
	}
}

func TestFromContext_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), NewWithWriter(&buf))

	log := FromContext(ctx)
	log.Info().Msg("hello")

	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Errorf("expected logger from context to write to buffer, got %q", buf.String())
	}
}

func TestFromContext_MissingIsSilent(t *testing.T) {
	log := FromContext(context.Background())
	log.Info().Msg("nowhere")
}
