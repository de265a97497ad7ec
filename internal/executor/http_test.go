package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nugget/tripwire/internal/eventbus"
)

func TestHTTPHandler_SuccessStatusRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	h := newHTTPHandler()
	ev := eventbus.New(eventbus.KindTimerTick, "t", nil)
	result, err := h.Handle(context.Background(), ev, map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success for 2xx, got %+v", result)
	}
}

func TestHTTPHandler_NonSuccessStatusIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := newHTTPHandler()
	ev := eventbus.New(eventbus.KindTimerTick, "t", nil)
	result, err := h.Handle(context.Background(), ev, map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected failure for a 500 response")
	}
}

func TestHTTPHandler_MissingURLErrors(t *testing.T) {
	h := newHTTPHandler()
	ev := eventbus.New(eventbus.KindTimerTick, "t", nil)
	if _, err := h.Handle(context.Background(), ev, map[string]any{}); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestHTTPHandler_TemplatesBodyAndHeaders(t *testing.T) {
	var gotBody, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		gotHeader = r.Header.Get("X-Source")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newHTTPHandler()
	ev := eventbus.New(eventbus.KindFileCreated, "fw", map[string]string{"path": "a.txt"})
	_, err := h.Handle(context.Background(), ev, map[string]any{
		"url":    srv.URL,
		"method": http.MethodPost,
		"body":   "{{EVENT_PATH}}",
		"headers": map[string]any{
			"X-Source": "{{EVENT_SOURCE}}",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotBody != "a.txt" {
		t.Fatalf("expected templated body a.txt, got %q", gotBody)
	}
	if gotHeader != "fw" {
		t.Fatalf("expected templated header fw, got %q", gotHeader)
	}
}
