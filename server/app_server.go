package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/INLOpen/nexuslake/config"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// AppServer manages all network-facing servers of one lake: the gRPC Lake
// service and the debug HTTP server.
type AppServer struct {
	grpcLis       net.Listener
	grpcServer    *GRPCServer
	metricsServer *MetricsServer
	collector     *SystemCollector
	cfg           *config.Config
	logger        *slog.Logger
	lake          *DocumentLake
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewAppServer creates and initializes a new application server. When lis is
// nil the gRPC server listens on cfg.Server.GRPCAddress; an empty address
// disables it.
func NewAppServer(l *DocumentLake, cfg *config.Config, lis net.Listener, logger *slog.Logger) (*AppServer, error) {
	appSrv := &AppServer{
		cfg:    cfg,
		logger: logger.With("component", "AppServer"),
		lake:   l,
	}
	appSrv.ctx, appSrv.cancel = context.WithCancel(context.Background())

	if lis == nil && cfg.Server.GRPCAddress != "" {
		var err error
		lis, err = net.Listen("tcp", cfg.Server.GRPCAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on gRPC address %s: %w", cfg.Server.GRPCAddress, err)
		}
	}
	if lis != nil {
		grpcSrv, err := NewGRPCServer(l, &cfg.Server, logger)
		if err != nil {
			lis.Close()
			return nil, fmt.Errorf("failed to create gRPC server: %w", err)
		}
		appSrv.grpcServer = grpcSrv
		appSrv.grpcLis = lis
		logger.Info("gRPC server will listen on", "address", lis.Addr().String())
	} else {
		logger.Info("gRPC server is disabled (address is not configured).")
	}

	if cfg.Debug.Enabled {
		interval := config.ParseDuration(cfg.Debug.SystemCollectInterval, 15*time.Second, logger)
		appSrv.collector = NewSystemCollector(l.Dir(), interval, logger)
		metricsSrv, err := NewMetricsServer(&cfg.Debug, l, logger, appSrv.collector.Collectors()...)
		if err != nil {
			if appSrv.grpcLis != nil {
				appSrv.grpcLis.Close()
			}
			return nil, fmt.Errorf("failed to create metrics server: %w", err)
		}
		appSrv.metricsServer = metricsSrv
	}
	return appSrv, nil
}

// Start runs all configured servers in parallel. It blocks until all servers stop.
func (s *AppServer) Start() error {
	if s.grpcServer == nil && s.metricsServer == nil {
		s.logger.Error("No servers to start.")
		return nil
	}

	// The group context is derived from the one Stop cancels, so Stop may run before Start.
	g, appCtx := errgroup.WithContext(s.ctx)

	if s.grpcServer != nil {
		g.Go(func() error {
			// This goroutine waits for the shutdown signal and stops the gRPC server.
			go func() {
				<-appCtx.Done()
				s.logger.Info("Context cancelled, stopping gRPC server...")
				s.grpcServer.Stop()
			}()
			s.logger.Info("Starting gRPC server...")
			return s.grpcServer.Start(s.grpcLis)
		})
	}

	if s.metricsServer != nil {
		s.collector.Start()
		g.Go(func() error {
			go func() {
				<-appCtx.Done()
				s.logger.Info("Context cancelled, stopping metrics server...")
				s.metricsServer.Stop()
				s.collector.Stop()
			}()
			return s.metricsServer.Start()
		})
	}

	s.logger.Info("Application server started. Waiting for servers to exit.")
	err := g.Wait()

	// On graceful shutdown, Serve() returns specific errors.
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("A server has failed, initiating shutdown.", "error", err)
		return fmt.Errorf("server group failed: %w", err)
	}

	s.logger.Info("All servers have stopped gracefully.")
	return nil
}

// Stop gracefully shuts down all servers.
func (s *AppServer) Stop() {
	s.cancel()
}

// Lake returns the lake being served. This is useful for tests.
func (s *AppServer) Lake() *DocumentLake {
	return s.lake
}
