package registrymonitor

import (
	"context"
	"errors"
	"testing"

	"github.com/nugget/tripwire/internal/eventbus"
	"github.com/nugget/tripwire/internal/plugin"
)

type noopEmitter struct{}

func (noopEmitter) Emit(eventbus.Event) eventbus.SendOutcome { return eventbus.Accepted }

func TestNewRequiresRootAndKey(t *testing.T) {
	if _, err := New("rm", Params{}); err == nil {
		t.Fatal("expected error for missing root/key")
	}
	if _, err := New("rm", Params{Root: "HKEY_CURRENT_USER"}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestFactoryDecodesParams(t *testing.T) {
	src, err := Factory("rm", map[string]any{
		"root":      "HKEY_CURRENT_USER",
		"key":       `Software\Example`,
		"recursive": true,
	})
	if err != nil {
		t.Fatal(err)
	}
	s := src.(*Source)
	if s.params.Root != "HKEY_CURRENT_USER" || s.params.Key != `Software\Example` || !s.params.Recursive {
		t.Fatalf("unexpected decoded params: %+v", s.params)
	}
}

func TestStartReturnsUnsupportedPlatform(t *testing.T) {
	src, err := New("rm", Params{Root: "HKEY_CURRENT_USER", Key: `Software\Example`})
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
	src, _ := New("rm", Params{Root: "HKEY_CURRENT_USER", Key: `Software\Example`})
	_ = src.Start(context.Background(), noopEmitter{})
	if err := src.Stop(context.Background()); err != nil {
		t.Fatalf("Stop after failed Start must succeed, got %v", err)
	}
	if err := src.Stop(context.Background()); err != nil {
		t.Fatalf("Stop must be idempotent, got %v", err)
	}
}
