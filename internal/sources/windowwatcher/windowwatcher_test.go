package windowwatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/nugget/tripwire/internal/eventbus"
	"github.com/nugget/tripwire/internal/plugin"
)

type noopEmitter struct{}

func (noopEmitter) Emit(eventbus.Event) eventbus.SendOutcome { return eventbus.Accepted }

func TestStartReturnsUnsupportedPlatform(t *testing.T) {
	src, err := New("ww", Params{})
	if err != nil {
		t.Fatal(err)
	}
	err = src.Start(context.Background(), noopEmitter{})
	if !errors.Is(err, plugin.ErrUnsupportedPlatform) {
		t.Fatalf("Start() err = %v, want ErrUnsupportedPlatform", err)
	}
	if src.IsRunning() {
		t.Fatal("stub must never report running")
	}
}

func TestStopAfterFailedStartSucceeds(t *testing.T) {
	src, _ := New("ww", Params{})
	_ = src.Start(context.Background(), noopEmitter{})
	if err := src.Stop(context.Background()); err != nil {
		t.Fatalf("Stop after failed Start must succeed, got %v", err)
	}
	if err := src.Stop(context.Background()); err != nil {
		t.Fatalf("Stop must be idempotent, got %v", err)
	}
}
