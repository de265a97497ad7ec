package sandbox

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/nugget/tripwire/internal/eventbus"
)

// newTestState builds a full (unrestricted) interpreter with just the
// capability tables installed, so each capability can be exercised
// directly without going through Sandbox.Run's timeout plumbing.
func newTestState(t *testing.T, roots PathAllowList) *lua.LState {
	t.Helper()
	L := lua.NewState()
	t.Cleanup(L.Close)

	sb := &Sandbox{logger: slog.Default(), roots: roots, cache: newChunkCache()}
	ev := eventbus.New(eventbus.KindTimerTick, "test", map[string]string{"path": "/tmp/x"})
	installCapabilities(L, sb, ev)
	return L
}

func TestCapabilities_LogTableAcceptsAllLevels(t *testing.T) {
	L := newTestState(t, PathAllowList{})
	script := `
log.debug("d")
log.info("i")
log.warn("w")
log.error("e")
`
	if err := L.DoString(script); err != nil {
		t.Fatal(err)
	}
}

func TestCapabilities_ExecRunReturnsExitCode(t *testing.T) {
	L := newTestState(t, PathAllowList{})
	script := `
local result = exec.run("true", {})
assert(result.exit_code == 0, "expected exit code 0, got " .. tostring(result.exit_code))
`
	if err := L.DoString(script); err != nil {
		t.Fatal(err)
	}
}

func TestCapabilities_FSExistsAndBasename(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "present.txt")
	if err := os.WriteFile(file, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	L := newTestState(t, PathAllowList{Roots: []string{dir}})
	L.SetGlobal("test_path", lua.LString(file))
	script := `
assert(fs.exists(test_path) == true, "expected file to exist")
assert(fs.basename(test_path) == "present.txt", "unexpected basename: " .. fs.basename(test_path))
assert(fs.file_size(test_path) == 2, "unexpected size: " .. tostring(fs.file_size(test_path)))
`
	if err := L.DoString(script); err != nil {
		t.Fatal(err)
	}
}

func TestCapabilities_FSDeleteOutsideAllowListRaises(t *testing.T) {
	dir := t.TempDir()
	L := newTestState(t, PathAllowList{Roots: []string{dir}})
	script := `
local ok = pcall(function() fs.delete("/etc/passwd") end)
assert(ok == false, "expected fs.delete outside the allow-list to raise an error")
`
	if err := L.DoString(script); err != nil {
		t.Fatal(err)
	}
}

func TestCapabilities_OSTimeAndDate(t *testing.T) {
	L := newTestState(t, PathAllowList{})
	script := `
assert(os.time() > 0, "expected a positive unix timestamp")
assert(type(os.date("%Y-%m-%d")) == "string", "expected a string date")
`
	if err := L.DoString(script); err != nil {
		t.Fatal(err)
	}
}

func TestCapabilities_JSONRoundTrip(t *testing.T) {
	L := newTestState(t, PathAllowList{})
	script := `
local encoded = json.encode({ a = 1, b = "two" })
local decoded = json.decode(encoded)
assert(decoded.a == 1, "expected a == 1")
assert(decoded.b == "two", "expected b == two")
`
	if err := L.DoString(script); err != nil {
		t.Fatal(err)
	}
}
