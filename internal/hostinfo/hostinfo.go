// Package hostinfo renders a human-readable snapshot of the machine and
// process tripwire is running on, for the CLI "status" subcommand. It
// gives an operator real-time orientation —
// which host, which build, how long it has been up — without needing
// to cross-reference the telemetry endpoint.
package hostinfo

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/nugget/tripwire/internal/buildinfo"
)

// Summary returns a formatted "Current Status" block for the CLI.
// The timezone parameter should be an IANA timezone name (e.g.,
// "America/Chicago"). If empty or invalid, the system's local
// timezone is used.
func Summary(timezone string) string {
	var sb strings.Builder

	sb.WriteString("Current Status\n\n")

	loc := time.Now().Location()
	tzResolved := false
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			loc = parsed
			tzResolved = true
		}
	}
	now := time.Now().In(loc)
	zoneName, _ := now.Zone()

	sb.WriteString("Time:   ")
	sb.WriteString(now.Format("Monday, January 2, 2006 at 15:04 "))
	sb.WriteString(zoneName)
	if tzResolved && timezone != zoneName {
		sb.WriteString(" (")
		sb.WriteString(timezone)
		sb.WriteString(")")
	}
	sb.WriteString("\n")

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	env := detectEnvironment()
	sb.WriteString(fmt.Sprintf("Host:   %s (%s/%s, %s)\n", hostname, runtime.GOOS, runtime.GOARCH, env))
	sb.WriteString(fmt.Sprintf("Build:  %s\n", buildinfo.String()))
	sb.WriteString(fmt.Sprintf("Uptime: %s", formatUptime(buildinfo.Uptime())))

	return sb.String()
}

// detectEnvironment returns "container" or "bare metal" based on
// heuristics appropriate for the current OS. Windows has no reliable
// equivalent to /.dockerenv; this always reports "bare metal" there
// except when a container-style environment variable is present
// (set by Windows container base images and CI runners alike).
func detectEnvironment() string {
	if runtime.GOOS == "linux" {
		if _, err := os.Stat("/.dockerenv"); err == nil {
			return "container"
		}
		if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
			content := string(data)
			if strings.Contains(content, "docker") ||
				strings.Contains(content, "lxc") ||
				strings.Contains(content, "kubepods") {
				return "container"
			}
		}
	}
	if os.Getenv("container") != "" || os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "container"
	}
	return "bare metal"
}

// formatUptime formats a duration as a human-readable uptime string.
// Examples: "4h 23m", "2d 5h", "45m", "30s".
func formatUptime(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
