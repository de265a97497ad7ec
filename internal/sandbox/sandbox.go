// Package sandbox runs user-supplied Script actions in a restricted
// github.com/yuin/gopher-lua interpreter: a fresh *lua.LState per
// invocation, only base/string/table/math opened, and a fixed set of
// namespaced capability tables standing in for everything the
// standard os/io libraries would otherwise expose.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/nugget/tripwire/internal/eventbus"
)

// Options configures a Sandbox.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration // default 30s, per spec.md §4.5
	Roots   PathAllowList
}

// Sandbox executes Script actions. It is safe for concurrent use: each
// Run constructs its own *lua.LState.
type Sandbox struct {
	logger  *slog.Logger
	timeout time.Duration
	roots   PathAllowList
	cache   *chunkCache
}

// New constructs a Sandbox rooted at the given allow-listed
// directories.
func New(opts Options) *Sandbox {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Sandbox{
		logger:  logger,
		timeout: timeout,
		roots:   opts.Roots,
		cache:   newChunkCache(),
	}
}

// runResult carries the outcome of an interpreter call back across the
// goroutine boundary Run uses to enforce the timeout.
type runResult struct {
	success bool
	message string
	err     error
}

// Run satisfies executor.ScriptRunner: it loads (or reuses a cached
// compile of) the script at path, invokes function ("on_event" when
// empty) with one argument — a table mirroring the event — and
// interprets the return value.
func (s *Sandbox) Run(ctx context.Context, ev eventbus.Event, path, function string) (bool, string, error) {
	if function == "" {
		function = "on_event"
	}
	proto, err := s.cache.Load(path)
	if err != nil {
		return false, "", fmt.Errorf("script sandbox: %w", err)
	}

	resultCh := make(chan runResult, 1)
	go func() {
		resultCh <- s.invoke(ctx, ev, proto, function)
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		return res.success, res.message, res.err
	case <-timer.C:
		// The goroutine above is abandoned; its *lua.LState is closed by
		// invoke's own defer once (if ever) the interpreter call
		// returns. Per spec.md §4.5 the sandbox need not guarantee
		// cancellation at arbitrary instruction boundaries, only that
		// resources are eventually released.
		return false, "", fmt.Errorf("script sandbox: %q timed out after %s", path, s.timeout)
	case <-ctx.Done():
		return false, "", ctx.Err()
	}
}

func (s *Sandbox) invoke(ctx context.Context, ev eventbus.Event, proto *lua.FunctionProto, function string) runResult {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	openRestrictedLibs(L)
	installCapabilities(L, s, ev)

	lfunc := L.NewFunctionFromProto(proto)
	L.Push(lfunc)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return runResult{err: fmt.Errorf("script load: %w", err)}
	}

	entry := L.GetGlobal(function)
	if entry.Type() != lua.LTFunction {
		return runResult{err: fmt.Errorf("script has no entry function %q", function)}
	}

	if err := L.CallByParam(lua.P{
		Fn:      entry,
		NRet:    1,
		Protect: true,
	}, eventToLua(L, ev)); err != nil {
		return runResult{err: fmt.Errorf("script runtime error: %w", err)}
	}

	ret := L.Get(-1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return runResult{err: fmt.Errorf("script must return a table, got %s", ret.Type().String())}
	}

	successVal := tbl.RawGetString("success")
	success, ok := successVal.(lua.LBool)
	if !ok {
		return runResult{err: fmt.Errorf("script return table missing boolean %q field", "success")}
	}

	message := ""
	if msgVal, ok := tbl.RawGetString("message").(lua.LString); ok {
		message = string(msgVal)
	}

	return runResult{success: bool(success), message: message}
}

// openRestrictedLibs opens only base, string, table, and math — never
// io, os, debug, package (require/loadfile/loadstring), or any
// native-module loader, per spec.md §4.5's forbidden surface.
func openRestrictedLibs(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	// OpenBase installs a handful of globals the sandbox must still deny:
	// dofile/loadfile/loadstring/require/collectgarbage are not part of
	// the approved capability surface.
	for _, forbidden := range []string{"dofile", "loadfile", "loadstring", "require", "load", "collectgarbage", "print"} {
		L.SetGlobal(forbidden, lua.LNil)
	}
}

// eventToLua mirrors eventbus.Event as a Lua table: id, timestamp,
// kind, source, metadata.
func eventToLua(L *lua.LState, ev eventbus.Event) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("id", lua.LString(ev.ID.String()))
	tbl.RawSetString("timestamp", lua.LString(ev.Timestamp.Format(time.RFC3339Nano)))
	tbl.RawSetString("kind", lua.LString(string(ev.Kind)))
	tbl.RawSetString("source", lua.LString(ev.Source))

	meta := L.NewTable()
	for k, v := range ev.Metadata {
		meta.RawSetString(k, lua.LString(v))
	}
	tbl.RawSetString("metadata", meta)
	return tbl
}
