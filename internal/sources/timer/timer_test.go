package timer

import (
	"context"
	"testing"
	"time"

	"github.com/nugget/tripwire/internal/eventbus"
)

type captureEmitter struct {
	events []eventbus.Event
}

func (c *captureEmitter) Emit(e eventbus.Event) eventbus.SendOutcome {
	c.events = append(c.events, e)
	return eventbus.Accepted
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	if _, err := New("t", Params{IntervalSeconds: 0}); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestStartEmitsTimerTick(t *testing.T) {
	src, err := New("t1", Params{IntervalSeconds: 1})
	if err != nil {
		t.Fatal(err)
	}
	// Shrink the interval directly for a fast test without exposing a
	// constructor knob meant only for tests.
	src.interval = 10 * time.Millisecond

	emitter := &captureEmitter{}
	if err := src.Start(context.Background(), emitter); err != nil {
		t.Fatal(err)
	}
	defer src.Stop(context.Background())

	deadline := time.After(2 * time.Second)
	for {
		if len(emitter.events) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a TimerTick event")
		case <-time.After(10 * time.Millisecond):
		}
	}

	e := emitter.events[0]
	if e.Kind != eventbus.KindTimerTick {
		t.Fatalf("kind = %v, want TimerTick", e.Kind)
	}
	if e.Source != "t1" {
		t.Fatalf("source = %q, want t1", e.Source)
	}
	if e.Metadata["interval_seconds"] == "" || e.Metadata["tick_count"] == "" {
		t.Fatalf("missing required metadata: %+v", e.Metadata)
	}
}

func TestStopIsIdempotentAndJoinsGoroutine(t *testing.T) {
	src, _ := New("t2", Params{IntervalSeconds: 1})
	src.interval = 5 * time.Millisecond
	emitter := &captureEmitter{}

	if err := src.Start(context.Background(), emitter); err != nil {
		t.Fatal(err)
	}
	if err := src.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := src.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop should be a no-op, got %v", err)
	}
	if src.IsRunning() {
		t.Fatal("expected IsRunning() == false after Stop")
	}
}

func TestStartTwiceReturnsErrAlreadyRunning(t *testing.T) {
	src, _ := New("t3", Params{IntervalSeconds: 1})
	emitter := &captureEmitter{}
	if err := src.Start(context.Background(), emitter); err != nil {
		t.Fatal(err)
	}
	defer src.Stop(context.Background())

	if err := src.Start(context.Background(), emitter); err == nil {
		t.Fatal("expected error starting an already-running source")
	}
}
