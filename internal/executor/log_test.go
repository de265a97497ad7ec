package executor

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/nugget/tripwire/internal/eventbus"
)

func TestLogHandler_ExpandsPlaceholders(t *testing.T) {
	var buf bytes.Buffer
	h := newLogHandler(slog.New(slog.NewTextHandler(&buf, nil)))

	ev := eventbus.New(eventbus.KindFileCreated, "fw", map[string]string{"path": "C:\\a.txt"})
	result, err := h.Handle(context.Background(), ev, map[string]any{
		"message": "created {{EVENT_PATH}} from {{EVENT_SOURCE}} ({{EVENT_TYPE}}) meta={{metadata.path}}",
		"level":   "info",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatal("log action must never fail")
	}
	want := "created C:\\a.txt from fw (FileCreated) meta=C:\\a.txt"
	if result.Message != want {
		t.Fatalf("message = %q, want %q", result.Message, want)
	}
	if !strings.Contains(buf.String(), want) {
		t.Fatalf("expected log output to contain %q, got %q", want, buf.String())
	}
}

func TestExpandTemplate_UnknownMetadataKeyLeftLiteral(t *testing.T) {
	ev := eventbus.New(eventbus.KindTimerTick, "t", nil)
	got := expandTemplate("value={{metadata.missing}}", ev)
	if got != "value={{metadata.missing}}" {
		t.Fatalf("expected unresolved placeholder to remain literal, got %q", got)
	}
}
