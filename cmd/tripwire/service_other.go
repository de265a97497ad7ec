//go:build !windows

package main

import "fmt"

// Windows service control is out of scope outside Windows; run-service,
// install, and uninstall all fail with the platform-error exit code
// rather than silently behaving like "serve".
func runAsService(run func(stop <-chan struct{})) error {
	return newPlatformError(fmt.Errorf("run-service is only supported on Windows"))
}

func installService(exePath string) error {
	return newPlatformError(fmt.Errorf("install is only supported on Windows"))
}

func uninstallService() error {
	return newPlatformError(fmt.Errorf("uninstall is only supported on Windows"))
}
