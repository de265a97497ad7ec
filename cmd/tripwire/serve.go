package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mattn/go-isatty"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/nugget/tripwire/internal/audit"
	"github.com/nugget/tripwire/internal/buildinfo"
	"github.com/nugget/tripwire/internal/config"
	"github.com/nugget/tripwire/internal/eventbus"
	"github.com/nugget/tripwire/internal/executor"
	"github.com/nugget/tripwire/internal/rules"
	"github.com/nugget/tripwire/internal/sandbox"
	"github.com/nugget/tripwire/internal/supervisor"
	"github.com/nugget/tripwire/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon in the foreground (default command)",
	RunE:  runServe,
}

func init() {
	rootCmd.RunE = runServe
}

func runServe(cmd *cobra.Command, args []string) error {
	return runServeUntil(cmd, nil)
}

// runServeUntil is runServe's body, plus an optional external stop
// signal (used by the Windows Service Control Manager path) alongside
// the usual SIGINT/SIGTERM.
func runServeUntil(cmd *cobra.Command, externalStop <-chan struct{}) error {
	configPath, _ := cmd.Flags().GetString("config")
	configDir, _ := cmd.Flags().GetString("config-dir")
	logLevelOverride, _ := cmd.Flags().GetString("log-level")
	dryRunOverride, _ := cmd.Flags().GetBool("dry-run")
	noWatch, _ := cmd.Flags().GetBool("no-watch")
	noBanner, _ := cmd.Flags().GetBool("no-banner")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfgPath, err := config.FindConfig(configPath, configDir)
	if err != nil {
		return newConfigError(err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return newConfigError(err)
	}
	if logLevelOverride != "" {
		cfg.Engine.LogLevel = logLevelOverride
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.Engine.DryRun = dryRunOverride
	}

	level, err := config.ParseLogLevel(cfg.Engine.LogLevel)
	if err != nil {
		return newConfigError(err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))

	if !noBanner && isatty.IsTerminal(os.Stdout.Fd()) {
		printBanner(cfgPath, cfg.Telemetry.Listen)
	}

	logger.Info("starting tripwire", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "config", cfgPath)

	ledger, err := audit.Open(filepath.Join(filepath.Dir(cfgPath), "tripwire-audit.db"))
	if err != nil {
		logger.Warn("audit ledger unavailable; action and reload history will not be recorded", "error", err)
		ledger = nil
	} else {
		defer ledger.Close()
	}

	collector := telemetry.New()

	sb := sandbox.New(sandbox.Options{
		Logger: logger,
		Roots:  sandbox.DefaultPathAllowList(),
	})

	bus := eventbus.New(cfg.Engine.EventBufferSize, eventbus.DropNew, collector)
	engine := rules.NewEngine(nil)
	exec := executor.New(executor.Options{
		DryRun:   cfg.Engine.DryRun,
		Logger:   logger,
		Recorder: collector,
		Audit:    ledger,
	})

	sup := supervisor.New(bus, engine, exec, supervisor.Options{
		Logger:   logger,
		Recorder: collector,
		Ledger:   ledger,
		Sandbox:  sb,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := sup.Reconcile(ctx, cfg); err != nil {
		logger.Error("initial configuration reconcile reported failures", "error", err)
	}

	if host, _, err := net.SplitHostPort(cfg.Telemetry.Listen); err == nil {
		if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			logger.Warn("telemetry listener is not bound to a loopback address", "listen", cfg.Telemetry.Listen)
		}
	}
	telemetryServer := telemetry.NewServer(collector, telemetry.ServerOptions{
		Listen: cfg.Telemetry.Listen,
		Logger: logger,
	})
	go func() {
		if err := telemetryServer.Start(ctx); err != nil {
			logger.Error("telemetry server stopped", "error", err)
		}
	}()

	if cfg.Telemetry.MQTT.Enabled {
		bridge := telemetry.NewMQTTBridge(telemetry.MQTTConfig{
			Enabled:     cfg.Telemetry.MQTT.Enabled,
			Broker:      cfg.Telemetry.MQTT.Broker,
			TopicPrefix: cfg.Telemetry.MQTT.TopicPrefix,
		}, collector, logger)
		go func() {
			if err := bridge.Start(ctx); err != nil {
				logger.Error("mqtt telemetry bridge stopped", "error", err)
			}
		}()
	}

	uptimeStop := make(chan struct{})
	go sup.RunUptimeGauge(uptimeStop)

	var watcherStop chan struct{}
	if !noWatch {
		watcherStop = make(chan struct{})
		go watchConfig(ctx, logger, cfgPath, sup, watcherStop)
	}

	dispatchDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(dispatchDone)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case <-externalStop:
		logger.Info("stop requested by service control manager")
	case <-dispatchDone:
		logger.Warn("dispatch loop exited unexpectedly")
	}

	cancel()
	close(uptimeStop)
	if watcherStop != nil {
		close(watcherStop)
	}
	sup.Shutdown(supervisor.ShutdownGrace)

	logger.Info("tripwire stopped")
	return nil
}

// watchConfig debounces fsnotify events on the config file's directory
// (editors often replace the file rather than write it in place) and
// triggers a reload a short quiet period after the last change.
func watchConfig(ctx context.Context, logger *slog.Logger, cfgPath string, sup *supervisor.Supervisor, stop <-chan struct{}) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config file watch disabled", "error", err)
		return
	}
	defer w.Close()

	dir := filepath.Dir(cfgPath)
	if err := w.Add(dir); err != nil {
		logger.Warn("config file watch disabled", "dir", dir, "error", err)
		return
	}

	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	reload := func() {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			logger.Error("config reload: validation failed, keeping previous configuration", "error", err)
			return
		}
		result, err := sup.Reconcile(ctx, cfg)
		if err != nil {
			logger.Error("config reload: reconcile reported failures", "error", err, "generation", result.Generation)
			return
		}
		logger.Info("config reloaded",
			"generation", result.Generation,
			"rules", result.RuleCount,
			"sources_started", len(result.SourcesStarted),
			"sources_stopped", len(result.SourcesStopped),
		)
	}

	for {
		select {
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(cfgPath) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("config watch error", "error", err)
		}
	}
}

func printBanner(cfgPath, listen string) {
	dashboard := "http://" + listen + "/"
	fmt.Println(buildinfo.String())
	fmt.Println("config:", cfgPath)
	fmt.Println("dashboard:", dashboard)
	if code, err := qrcode.New(dashboard, qrcode.Low); err == nil {
		fmt.Println(code.ToSmallString(false))
	}
}
