// Command tripwire runs the event-driven automation daemon: it wires
// together the event bus, rule engine, action executor, and source
// supervisor described by the packages under internal/, and exposes
// the condensed telemetry sidecar over HTTP (and optionally MQTT).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nugget/tripwire/internal/buildinfo"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tripwire: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "tripwire",
	Short:   "Event-driven automation daemon",
	Version: buildinfo.Version,
}

func init() {
	rootCmd.SetVersionTemplate(buildinfo.String() + "\n")

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringP("config-dir", "d", "", "directory containing tripwire.toml")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "override the configured log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("dry-run", false, "log every matched action instead of executing it")
	rootCmd.PersistentFlags().Bool("no-watch", false, "disable automatic reload when the config file changes")
	rootCmd.PersistentFlags().Bool("no-banner", false, "suppress the startup banner")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runServiceCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		for k, v := range buildinfo.BuildInfo() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
		return nil
	},
}

// exitCodeFor maps a startup failure to the normative exit code: 0
// success (never reaches here), 1 generic failure, 2 configuration
// error, 3 platform/service-control error.
func exitCodeFor(err error) int {
	var se *startupError
	if errors.As(err, &se) {
		return se.code
	}
	return 1
}

// startupError pins an exit code to an error raised before the
// supervisor's dispatch loop starts, so main can report a precise
// code to the OS without every command threading one through by hand.
type startupError struct {
	code int
	err  error
}

func (e *startupError) Error() string { return e.err.Error() }
func (e *startupError) Unwrap() error { return e.err }

func newConfigError(err error) error {
	return &startupError{code: 2, err: err}
}

func newPlatformError(err error) error {
	return &startupError{code: 3, err: err}
}
