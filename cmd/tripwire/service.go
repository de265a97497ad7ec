package main

import (
	"os"

	"github.com/spf13/cobra"
)

var runServiceCmd = &cobra.Command{
	Use:    "run-service",
	Short:  "Run under the Windows Service Control Manager (internal; used by install)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsService(func(stop <-chan struct{}) {
			_ = runServeUntil(cmd, stop)
		})
	},
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install tripwire as a Windows service",
	RunE: func(cmd *cobra.Command, args []string) error {
		exePath, err := os.Executable()
		if err != nil {
			return newPlatformError(err)
		}
		return installService(exePath)
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the installed Windows service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return uninstallService()
	},
}
