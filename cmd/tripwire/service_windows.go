//go:build windows

package main

import (
	"fmt"
	"time"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

const serviceName = "Tripwire"

// winService adapts the daemon to the svc.Handler contract Windows'
// Service Control Manager drives: Execute blocks until the SCM asks
// for a stop or shutdown, translating those requests into ctx
// cancellation for the rest of the process.
type winService struct {
	run func(stop <-chan struct{})
}

func (s *winService) Execute(args []string, r <-chan svc.ChangeRequest, status chan<- svc.Status) (bool, uint32) {
	status <- svc.Status{State: svc.StartPending}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.run(stop)
		close(done)
	}()
	status <- svc.Status{State: svc.Running, Accepts: svc.AcceptStop | svc.AcceptShutdown}

	for {
		select {
		case req := <-r:
			switch req.Cmd {
			case svc.Stop, svc.Shutdown:
				status <- svc.Status{State: svc.StopPending}
				close(stop)
				select {
				case <-done:
				case <-time.After(15 * time.Second):
				}
				return false, 0
			case svc.Interrogate:
				status <- req.CurrentStatus
			}
		case <-done:
			return false, 0
		}
	}
}

func runAsService(run func(stop <-chan struct{})) error {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return newPlatformError(fmt.Errorf("determine service context: %w", err))
	}
	if !isService {
		return newPlatformError(fmt.Errorf("run-service must be invoked by the Service Control Manager"))
	}
	return svc.Run(serviceName, &winService{run: run})
}

func installService(exePath string) error {
	m, err := mgr.Connect()
	if err != nil {
		return newPlatformError(fmt.Errorf("connect to service control manager: %w", err))
	}
	defer m.Disconnect()

	s, err := m.CreateService(serviceName, exePath, mgr.Config{
		DisplayName: "Tripwire Automation Daemon",
		StartType:   mgr.StartAutomatic,
	}, "run-service")
	if err != nil {
		return newPlatformError(fmt.Errorf("create service: %w", err))
	}
	defer s.Close()
	return nil
}

func uninstallService() error {
	m, err := mgr.Connect()
	if err != nil {
		return newPlatformError(fmt.Errorf("connect to service control manager: %w", err))
	}
	defer m.Disconnect()

	s, err := m.OpenService(serviceName)
	if err != nil {
		return newPlatformError(fmt.Errorf("open service: %w", err))
	}
	defer s.Close()
	return s.Delete()
}
