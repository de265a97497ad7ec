package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerOptions configures the telemetry HTTP server.
type ServerOptions struct {
	// Listen is the bind address, "127.0.0.1:9090" by default per
	// spec.md §6.3. Binding to anything else is permitted but logged
	// as a warning by the caller (cmd/tripwire), not enforced here.
	Listen string
	Logger *slog.Logger
}

// Server exposes the routes spec.md §6.3 names: GET /metrics, GET
// /api/snapshot, GET /health, GET /, GET /ws.
type Server struct {
	collector *Collector
	started   time.Time
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	http      *http.Server
}

// NewServer builds a Server bound to opts.Listen. Call Start to accept
// connections.
func NewServer(collector *Collector, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	listen := opts.Listen
	if listen == "" {
		listen = "127.0.0.1:9090"
	}

	s := &Server{
		collector: collector,
		started:   time.Now(),
		logger:    logger,
		upgrader:  websocket.Upgrader{
			// Same-origin dashboard only; no cross-site upgrade is ever
			// legitimate for a loopback-bound operator endpoint. A nil
			// CheckOrigin makes the upgrader reject any request whose
			// Origin header names a different host.
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", s.handleDashboard)

	s.http = &http.Server{Addr: listen, Handler: mux}
	return s
}

// Handler returns the server's http.Handler, primarily so tests can
// drive routes via httptest without binding a real listener.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully. It returns once the server has stopped.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("telemetry server: listen on %s: %w", s.http.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.collector.Snapshot()); err != nil {
		s.logger.Error("telemetry: encode snapshot", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, dashboardHTML)
}

// handleWS upgrades to a websocket connection and pushes every newly
// recorded sample immediately, plus a full snapshot every 5 seconds,
// per spec.md §6.3's "incremental events and periodic snapshots".
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("telemetry: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	samples := make(chan Sample, 64)
	s.collector.Subscribe(samples)
	defer s.collector.Unsubscribe(samples)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case sample := <-samples:
			if err := conn.WriteJSON(map[string]any{"type": "sample", "sample": sample}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]any{"type": "snapshot", "snapshot": s.collector.Snapshot()}); err != nil {
				return
			}
		}
	}
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head><title>tripwire</title></head>
<body>
<h1>tripwire</h1>
<p>See <a href="/metrics">/metrics</a>, <a href="/api/snapshot">/api/snapshot</a>, <a href="/health">/health</a>, or connect to /ws for live updates.</p>
</body>
</html>
`
