// Package timer implements the "timer" source family: a periodic
// ticker that emits TimerTick events. It is the one source family
// with no OS dependency at all, so unlike the window/process/registry
// families it is a complete, directly testable implementation rather
// than a contract stub.
package timer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nugget/tripwire/internal/eventbus"
	"github.com/nugget/tripwire/internal/plugin"
)

// Params are the timer source's type-specific configuration fields,
// decoded by internal/config from the [[sources]] table.
type Params struct {
	IntervalSeconds int
}

// Source is a timer event source.
type Source struct {
	name     string
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	ticks   uint64
}

// New constructs a timer source. interval must be positive.
func New(name string, params Params) (*Source, error) {
	if params.IntervalSeconds <= 0 {
		return nil, fmt.Errorf("timer %q: interval_seconds must be >= 1", name)
	}
	return &Source{
		name:     name,
		interval: time.Duration(params.IntervalSeconds) * time.Second,
	}, nil
}

// Factory adapts New to plugin.Factory for registration with the
// supervisor's source-family registry.
func Factory(name string, raw map[string]any) (plugin.Source, error) {
	p := Params{}
	if v, ok := raw["interval_seconds"]; ok {
		switch n := v.(type) {
		case int64:
			p.IntervalSeconds = int(n)
		case int:
			p.IntervalSeconds = n
		case float64:
			p.IntervalSeconds = int(n)
		}
	}
	return New(name, p)
}

func (s *Source) Name() string { return s.name }

func (s *Source) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins the ticker loop. It returns immediately; the loop runs
// on a background goroutine until Stop is called.
func (s *Source) Start(ctx context.Context, emitter plugin.Emitter) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return plugin.ErrAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(emitter, stopCh)
	return nil
}

func (s *Source) run(emitter plugin.Emitter, stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.ticks++
			tick := s.ticks
			s.mu.Unlock()

			emitter.Emit(eventbus.New(eventbus.KindTimerTick, s.name, map[string]string{
				"interval_seconds": strconv.Itoa(int(s.interval.Seconds())),
				"tick_count":       strconv.FormatUint(tick, 10),
			}))
		}
	}
}

// Stop is idempotent and blocks until the background goroutine exits.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
