package sandbox

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"

	"github.com/nugget/tripwire/internal/eventbus"
	"github.com/nugget/tripwire/internal/executor"
	"github.com/nugget/tripwire/internal/httpkit"
)

// installCapabilities populates the fixed namespaced tables spec.md
// §4.5 enumerates: log, exec, http, json, fs, os. Every closure here
// is the entire surface a script can reach outside pure Lua — there is
// no path to raw file I/O, process spawning, or time mutation other
// than through these functions.
func installCapabilities(L *lua.LState, s *Sandbox, ev eventbus.Event) {
	L.SetGlobal("log", buildLogTable(L, s.logger))
	L.SetGlobal("exec", buildExecTable(L))
	L.SetGlobal("http", buildHTTPTable(L))
	L.SetGlobal("fs", buildFSTable(L, s.roots))
	L.SetGlobal("os", buildOSTable(L))

	jsonTbl := L.NewTable()
	L.SetField(jsonTbl, "encode", L.NewFunction(luajson.Encode))
	L.SetField(jsonTbl, "decode", L.NewFunction(luajson.Decode))
	L.SetGlobal("json", jsonTbl)

	_ = ev // reserved: future capability tables may need the triggering event
}

func buildLogTable(L *lua.LState, logger *slog.Logger) *lua.LTable {
	tbl := L.NewTable()
	for level, fn := range map[string]func(string, ...any){
		"debug": logger.Debug,
		"info":  logger.Info,
		"warn":  logger.Warn,
		"error": logger.Error,
	} {
		fn := fn
		L.SetField(tbl, level, L.NewFunction(func(L *lua.LState) int {
			msg := L.CheckString(1)
			fn(msg, "source", "script")
			return 0
		}))
	}
	return tbl
}

func buildExecTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "run", L.NewFunction(func(L *lua.LState) int {
		program := L.CheckString(1)
		var args []string
		if argsTbl, ok := L.Get(2).(*lua.LTable); ok {
			argsTbl.ForEach(func(_, v lua.LValue) {
				args = append(args, v.String())
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cmd := exec.CommandContext(ctx, program, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err := cmd.Run()

		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
			}
		}

		result := L.NewTable()
		result.RawSetString("exit_code", lua.LNumber(exitCode))
		result.RawSetString("stdout", lua.LString(capString(stdout.String())))
		result.RawSetString("stderr", lua.LString(capString(stderr.String())))
		L.Push(result)
		return 1
	}))
	return tbl
}

func buildHTTPTable(L *lua.LState) *lua.LTable {
	client := httpkit.NewClient()
	doRequest := func(L *lua.LState, method string) int {
		url := L.CheckString(1)
		var body string
		var timeout = 30 * time.Second
		headers := map[string]string{}
		if opts, ok := L.Get(2).(*lua.LTable); ok {
			if v, ok := opts.RawGetString("body").(lua.LString); ok {
				body = string(v)
			}
			if v, ok := opts.RawGetString("timeout_ms").(lua.LNumber); ok {
				timeout = time.Duration(v) * time.Millisecond
			}
			if hdrs, ok := opts.RawGetString("headers").(*lua.LTable); ok {
				hdrs.ForEach(func(k, v lua.LValue) {
					headers[k.String()] = v.String()
				})
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBufferString(body))
		if err != nil {
			L.RaiseError("http.%s: %v", method, err)
			return 0
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			L.RaiseError("http.%s: %v", method, err)
			return 0
		}
		defer httpkit.DrainAndClose(resp.Body, 4096)

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, executor.CaptureCapBytes))

		result := L.NewTable()
		result.RawSetString("status", lua.LNumber(resp.StatusCode))
		result.RawSetString("body", lua.LString(string(respBody)))
		L.Push(result)
		return 1
	}

	tbl := L.NewTable()
	L.SetField(tbl, "get", L.NewFunction(func(L *lua.LState) int { return doRequest(L, http.MethodGet) }))
	L.SetField(tbl, "post", L.NewFunction(func(L *lua.LState) int { return doRequest(L, http.MethodPost) }))
	return tbl
}

func buildFSTable(L *lua.LState, roots PathAllowList) *lua.LTable {
	tbl := L.NewTable()

	L.SetField(tbl, "exists", L.NewFunction(func(L *lua.LState) int {
		resolved, err := roots.Resolve(L.CheckString(1))
		if err != nil {
			L.RaiseError("fs.exists: %v", err)
			return 0
		}
		_, statErr := os.Stat(resolved)
		L.Push(lua.LBool(statErr == nil))
		return 1
	}))

	L.SetField(tbl, "file_size", L.NewFunction(func(L *lua.LState) int {
		resolved, err := roots.Resolve(L.CheckString(1))
		if err != nil {
			L.RaiseError("fs.file_size: %v", err)
			return 0
		}
		info, statErr := os.Stat(resolved)
		if statErr != nil {
			L.Push(lua.LNumber(-1))
			return 1
		}
		L.Push(lua.LNumber(info.Size()))
		return 1
	}))

	L.SetField(tbl, "file_size_human", L.NewFunction(func(L *lua.LState) int {
		resolved, err := roots.Resolve(L.CheckString(1))
		if err != nil {
			L.RaiseError("fs.file_size_human: %v", err)
			return 0
		}
		info, statErr := os.Stat(resolved)
		if statErr != nil {
			L.Push(lua.LString(""))
			return 1
		}
		L.Push(lua.LString(humanize.Bytes(uint64(info.Size()))))
		return 1
	}))

	L.SetField(tbl, "basename", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(basename(L.CheckString(1))))
		return 1
	}))

	L.SetField(tbl, "move", L.NewFunction(func(L *lua.LState) int {
		src, err := roots.Resolve(L.CheckString(1))
		if err != nil {
			L.RaiseError("fs.move: %v", err)
			return 0
		}
		dst, err := roots.Resolve(L.CheckString(2))
		if err != nil {
			L.RaiseError("fs.move: %v", err)
			return 0
		}
		if err := os.Rename(src, dst); err != nil {
			L.RaiseError("fs.move: %v", err)
			return 0
		}
		return 0
	}))

	L.SetField(tbl, "delete", L.NewFunction(func(L *lua.LState) int {
		resolved, err := roots.Resolve(L.CheckString(1))
		if err != nil {
			L.RaiseError("fs.delete: %v", err)
			return 0
		}
		if err := os.Remove(resolved); err != nil {
			L.RaiseError("fs.delete: %v", err)
			return 0
		}
		return 0
	}))

	return tbl
}

func buildOSTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "time", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	L.SetField(tbl, "date", L.NewFunction(func(L *lua.LState) int {
		format := "2006-01-02 15:04:05"
		if L.GetTop() >= 1 {
			format = strftimeToGo(L.CheckString(1))
		}
		L.Push(lua.LString(time.Now().Format(format)))
		return 1
	}))
	return tbl
}

func capString(s string) string {
	if len(s) <= executor.CaptureCapBytes {
		return s
	}
	return s[:executor.CaptureCapBytes]
}

func basename(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' || p[i] == '\\' {
			return p[i+1:]
		}
	}
	return p
}

// strftimeToGo converts the handful of strftime verbs scripts are
// likely to pass into os.date's format string into Go's reference-time
// layout; unrecognised input is returned unchanged, which for a plain
// Go layout string (the common case) is exactly correct.
func strftimeToGo(format string) string {
	replacer := map[string]string{
		"%Y": "2006", "%m": "01", "%d": "02",
		"%H": "15", "%M": "04", "%S": "05",
	}
	out := format
	for verb, layout := range replacer {
		out = strings.ReplaceAll(out, verb, layout)
	}
	return out
}
