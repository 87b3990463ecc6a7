package server

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/INLOpen/nexuslake/config"
	"github.com/arl/statsviz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer manages the HTTP server for metrics and debugging.
type MetricsServer struct {
	server   *http.Server
	registry *prometheus.Registry
	logger   *slog.Logger
	started  bool
	mu       sync.Mutex
}

// NewMetricsServer creates and configures a new HTTP server. src may be nil,
// in which case only process-level metrics are exported. Extra collectors
// are registered with the Prometheus registry.
func NewMetricsServer(cfg *config.DebugConfig, src StatsSource, logger *slog.Logger, extra ...prometheus.Collector) (*MetricsServer, error) {
	mux := http.NewServeMux()
	logger = logger.With("component", "MetricsServer")

	if cfg.PProfEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		logger.Info("pprof profiling endpoints enabled on /debug/pprof")
	}

	// Register expvar handler for metrics under /metrics
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", expvar.Handler())
		logger.Info("expvar metrics endpoint enabled on /metrics")
	}

	registry := prometheus.NewRegistry()
	if cfg.PrometheusEnabled {
		toRegister := []prometheus.Collector{
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		}
		if src != nil {
			toRegister = append(toRegister, LakeCollectors(src)...)
		}
		toRegister = append(toRegister, extra...)
		for _, c := range toRegister {
			if err := registry.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register prometheus collector: %w", err)
			}
		}
		mux.Handle("/prometheus", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
		logger.Info("Prometheus endpoint enabled on /prometheus")
	}

	if cfg.MonitorUIEnabled {
		if err := statsviz.Register(mux,
			statsviz.Root("/viz"),
			statsviz.SendFrequency(250*time.Millisecond),
		); err != nil {
			return nil, fmt.Errorf("failed to register statsviz: %w", err)
		}
		logger.Info("Monitoring UI is available at /viz")
	}

	addr := cfg.ListenAddress
	if addr == "" {
		addr = ":6061"
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		registry: registry,
		logger:   logger,
	}, nil
}

// Handler returns the server's request multiplexer.
func (s *MetricsServer) Handler() http.Handler { return s.server.Handler }

// Start starts the Metrics server on its configured address. It's a blocking call.
func (s *MetricsServer) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics address %s: %w", s.server.Addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop is called. It's a blocking call.
func (s *MetricsServer) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		lis.Close()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("Metrics server for metrics and pprof listening", "address", lis.Addr().String())
	if err := s.server.Serve(lis); err != nil && err != http.ErrServerClosed {
		s.logger.Error("Metrics server failed", "error", err)
		return fmt.Errorf("failed to start Metrics server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the Metrics server.
func (s *MetricsServer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("Stopping Metrics server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Metrics server shutdown failed", "error", err)
	} else {
		s.logger.Info("Metrics server stopped gracefully.")
	}
}
