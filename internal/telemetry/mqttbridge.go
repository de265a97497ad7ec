package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/tripwire/internal/connwatch"
)

// MQTTConfig configures the optional MQTT sink, ambient to spec.md but
// named in SPEC_FULL.md's [telemetry.mqtt] table for operators who
// already run a broker for home-automation integration.
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	TopicPrefix string
}

// MQTTBridge republishes the collector's 5-second snapshot as a
// retained MQTT message, grounded on the same autopaho connection
// pattern thane-ai-agent's internal/mqtt.Publisher used, trimmed to a
// single retained publish instead of Home Assistant discovery sensors.
type MQTTBridge struct {
	cfg       MQTTConfig
	collector *Collector
	logger    *slog.Logger
	cm        *autopaho.ConnectionManager
	watchers  *connwatch.Manager
}

// NewMQTTBridge constructs a bridge. It does not connect until Start
// is called.
func NewMQTTBridge(cfg MQTTConfig, collector *Collector, logger *slog.Logger) *MQTTBridge {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "tripwire"
	}
	return &MQTTBridge{cfg: cfg, collector: collector, logger: logger}
}

// Start connects to the configured broker and publishes a retained
// snapshot every 5 seconds until ctx is cancelled. A connwatch.Watcher
// logs connectivity transitions the same way thane-ai-agent tracked
// Home Assistant/Ollama reachability.
func (b *MQTTBridge) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(b.cfg.Broker)
	if err != nil {
		return fmt.Errorf("mqtt bridge: parse broker url: %w", err)
	}

	topic := b.snapshotTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{brokerURL},
		KeepAlive:  30,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("telemetry mqtt bridge connected", "broker", b.cfg.Broker)
		},
		OnConnectError: func(err error) {
			b.logger.Warn("telemetry mqtt bridge connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "tripwire-telemetry-" + hostnameOrUnknown(),
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt bridge: connect: %w", err)
	}
	b.cm = cm

	b.watchers = connwatch.NewManager(b.logger)
	b.watchers.Watch(ctx, connwatch.WatcherConfig{
		Name:    "telemetry-mqtt-broker",
		Probe:   func(probeCtx context.Context) error { return cm.AwaitConnection(probeCtx) },
		Backoff: connwatch.DefaultBackoffConfig(),
		OnDown:  func(err error) { b.logger.Warn("telemetry mqtt broker unreachable", "error", err) },
		OnReady: func() { b.logger.Info("telemetry mqtt broker reachable") },
		Logger:  b.logger,
	})

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	defer b.watchers.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.publishSnapshot(ctx, topic)
		}
	}
}

func (b *MQTTBridge) publishSnapshot(ctx context.Context, topic string) {
	payload, err := json.Marshal(b.collector.Snapshot())
	if err != nil {
		b.logger.Error("telemetry mqtt bridge: marshal snapshot", "error", err)
		return
	}
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := b.cm.Publish(publishCtx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		b.logger.Warn("telemetry mqtt bridge: publish failed", "error", err)
	}
}

func (b *MQTTBridge) snapshotTopic() string {
	return b.cfg.TopicPrefix + "/" + hostnameOrUnknown() + "/snapshot"
}

func hostnameOrUnknown() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}
