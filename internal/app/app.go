// Package app wires the consensus node, table state machine, and transports
// together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/ubante/yugabyte-db/internal/consensus"
	"github.com/ubante/yugabyte-db/internal/service"
	"github.com/ubante/yugabyte-db/internal/transport/grpcconsensus"
	"github.com/ubante/yugabyte-db/internal/transport/grpcquery"
)

// Logger is the logging interface required by App.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Engine is the consensus runtime lifecycle required by App.
// *raft.Node satisfies this interface.
type Engine interface {
	Run(ctx context.Context) error
	Stop()
}

// App wires the consensus engine and the table state machine into a runnable
// service. All dependencies are injected; App does not create transport
// connections.
type App struct {
	config       Config
	logger       Logger
	engine       Engine
	table        *service.Table
	applyCh      <-chan consensus.ApplyMsg
	consensusSrv *grpcconsensus.Server
	querySrv     *grpcquery.Server
}

// New validates dependencies and constructs a runnable application.
func New(
	cfg Config,
	logger Logger,
	engine Engine,
	table *service.Table,
	applyCh <-chan consensus.ApplyMsg,
	consensusSrv *grpcconsensus.Server,
	querySrv *grpcquery.Server,
) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, fmt.Errorf("app: nil logger")
	}
	if engine == nil {
		return nil, fmt.Errorf("app: nil engine")
	}
	if table == nil {
		return nil, fmt.Errorf("app: nil table service")
	}
	if applyCh == nil {
		return nil, fmt.Errorf("app: nil apply channel")
	}
	if consensusSrv == nil {
		return nil, fmt.Errorf("app: nil consensus server")
	}
	if querySrv == nil {
		return nil, fmt.Errorf("app: nil query server")
	}
	return &App{
		config:       cfg,
		logger:       logger,
		engine:       engine,
		table:        table,
		applyCh:      applyCh,
		consensusSrv: consensusSrv,
		querySrv:     querySrv,
	}, nil
}

// Stop stops the underlying consensus engine.
func (a *App) Stop() {
	a.engine.Stop()
}

// Run starts tracing, the consensus engine, and the gRPC/HTTP servers, and
// blocks until shutdown or a fatal error.
func (a *App) Run(ctx context.Context) error {
	shutdownTracing, err := a.initTracing(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			a.logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	if err := a.engine.Run(ctx); err != nil {
		return fmt.Errorf("start consensus engine: %w", err)
	}

	lis, err := net.Listen("tcp", a.config.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", a.config.GRPCAddr, err)
	}
	defer func() { _ = lis.Close() }()

	a.logger.Info(
		"node started",
		"node_id", a.config.NodeID,
		"consensus_type", a.config.ConsensusType,
		"grpc_addr", a.config.GRPCAddr,
	)

	return a.serve(ctx, lis)
}

// serve registers gRPC services, starts goroutines, and blocks until ctx is
// canceled or a fatal error occurs.
func (a *App) serve(ctx context.Context, lis net.Listener) error {
	server := grpc.NewServer()
	a.consensusSrv.Register(server)
	a.querySrv.Register(server)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(server, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(server)

	metricsSrv, metricsLis, err := a.metricsServer()
	if err != nil {
		return err
	}
	pprofSrv, pprofLis, err := a.pprofServer()
	if err != nil {
		return err
	}

	errCh := make(chan error, 4)

	go func() {
		if err := a.table.RunApplier(ctx, a.applyCh); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("table applier: %w", err)
		}
	}()
	go func() {
		if err := server.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	if metricsSrv != nil {
		a.logger.Info("metrics endpoint enabled", "addr", a.config.MetricsAddr)
		go func() {
			if err := metricsSrv.Serve(metricsLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics serve: %w", err)
			}
		}()
	}
	if pprofSrv != nil {
		a.logger.Info("pprof endpoint enabled", "addr", a.config.PprofAddr)
		go func() {
			if err := pprofSrv.Serve(pprofLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("pprof serve: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		server.GracefulStop()
		shutdownHTTPServer(metricsSrv, a.logger, "metrics server")
		shutdownHTTPServer(pprofSrv, a.logger, "pprof server")
		return nil
	case err := <-errCh:
		server.Stop()
		shutdownHTTPServer(metricsSrv, a.logger, "metrics server")
		shutdownHTTPServer(pprofSrv, a.logger, "pprof server")
		return err
	}
}
