package executor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/nugget/tripwire/internal/eventbus"
)

// CaptureCapBytes bounds stdout/stderr capture per spec.md §4.4: 64
// KiB each, remainder discarded with a log warning. Exported so the
// script sandbox's exec.run capability applies the identical cap.
const CaptureCapBytes = 64 * 1024

const captureCapBytes = CaptureCapBytes

// execHandler spawns a child process with a program, argument vector,
// and optional working directory, generalized from thane-ai-agent's
// ShellExec.Exec (which ran a single shell string through "sh -c")
// into an argv-based invocation so that Execute actions never need an
// intermediate shell to parse quoting.
type execHandler struct{}

func (execHandler) Handle(ctx context.Context, ev eventbus.Event, params map[string]any) (Result, error) {
	program, _ := params["command"].(string)
	if program == "" {
		return Result{}, fmt.Errorf("execute action: missing required %q field", "command")
	}
	args := stringSlice(params["args"])
	workingDir, _ := params["working_dir"].(string)

	return runProcess(ctx, ev, program, args, workingDir)
}

// powershellHandler runs a script string through a fixed PowerShell
// invocation, per spec.md §4.4's "same as Execute but with a fixed
// program".
type powershellHandler struct{}

func (powershellHandler) Handle(ctx context.Context, ev eventbus.Event, params map[string]any) (Result, error) {
	script, _ := params["script"].(string)
	if script == "" {
		return Result{}, fmt.Errorf("powershell action: missing required %q field", "script")
	}
	workingDir, _ := params["working_dir"].(string)

	args := []string{"-NoProfile", "-NonInteractive", "-Command", script}
	return runProcess(ctx, ev, "powershell.exe", args, workingDir)
}

func runProcess(ctx context.Context, ev eventbus.Event, program string, args []string, workingDir string) (Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	cmd.Env = processEnv(ev)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	out := truncateOutput(stdout.String(), captureCapBytes)
	errOut := truncateOutput(stderr.String(), captureCapBytes)
	if stdout.Len() > captureCapBytes || stderr.Len() > captureCapBytes {
		slog.Default().Warn("process output truncated", "program", program, "cap_bytes", captureCapBytes)
	}

	if ctx.Err() != nil {
		return Result{Success: false, TimedOut: true, Message: fmt.Sprintf("process timed out (stderr: %s)", errOut)}, nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return Result{
				Success: false,
				Message: fmt.Sprintf("exit code %d: %s", exitErr.ExitCode(), errOut),
			}, nil
		}
		return Result{Success: false, Message: err.Error()}, nil
	}

	return Result{Success: true, Message: out}, nil
}

// processEnv is the engine's own environment plus EVENT_PATH,
// EVENT_TYPE, EVENT_SOURCE, and one META_<KEY> per metadata entry, per
// spec.md §4.4.
func processEnv(ev eventbus.Event) []string {
	env := osEnviron()
	env = append(env,
		"EVENT_PATH="+ev.Metadata["path"],
		"EVENT_TYPE="+string(ev.Kind),
		"EVENT_SOURCE="+ev.Source,
	)
	for key, value := range ev.Metadata {
		env = append(env, "META_"+envKey(key)+"="+value)
	}
	return env
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// truncateOutput truncates output to maxBytes, noting truncation
// inline so an operator reading the log record knows data was lost.
func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n\n[... output truncated ...]"
}
