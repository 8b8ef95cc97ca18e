// Package main implements the tablet node process that runs consensus and
// the table gRPC API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	apppkg "github.com/ubante/yugabyte-db/internal/app"
	"github.com/ubante/yugabyte-db/internal/consensus"
	"github.com/ubante/yugabyte-db/internal/consensus/raft"
	"github.com/ubante/yugabyte-db/internal/observability/metrics"
	"github.com/ubante/yugabyte-db/internal/service"
	"github.com/ubante/yugabyte-db/internal/table"
	"github.com/ubante/yugabyte-db/internal/transport/grpcconsensus"
	"github.com/ubante/yugabyte-db/internal/transport/grpcquery"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "node: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := apppkg.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	slog.SetDefault(newLogger(cfg.LogLevel))
	logger := slog.Default()

	peerAddrs, err := cfg.PeerAddrMap()
	if err != nil {
		return err
	}
	delete(peerAddrs, cfg.NodeID) // exclude self if listed

	// A stalled peer RPC holds that peer's replication slot, so every call
	// gets a deadline comfortably above the heartbeat interval.
	peerCallTimeout := 4 * cfg.HeartbeatInterval

	peers, err := grpcconsensus.DialPeers(
		peerAddrs,
		peerCallTimeout,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return err
	}

	prom, err := metrics.NewPrometheus(prometheus.DefaultRegisterer)
	if err != nil {
		for _, p := range peers {
			_ = p.Close()
		}
		return err
	}

	tracer := otel.Tracer("tablet-node")
	applyCh := make(chan consensus.ApplyMsg, 256)
	store := table.NewStore(tracer)
	storage := raft.NewJSONStorage(cfg.DataDir)

	node, err := raft.NewNode(cfg.NodeID, peers, applyCh, storage, logger, tracer, prom, raft.Tuning{
		HeartbeatInterval:    cfg.HeartbeatInterval,
		LeaseDuration:        cfg.LeaseDuration,
		LeaderStateStaleness: cfg.LeaderStateStaleness,
	})
	if err != nil {
		for _, p := range peers {
			_ = p.Close()
		}
		return err
	}

	tableSvc := service.NewTable(node.Consensus(), node, store, logger, tracer, prom, cfg.NodeID)
	consensusSrv := grpcconsensus.NewServer(node, tracer)
	querySrv := grpcquery.NewServer(tableSvc, node)

	app, err := apppkg.New(cfg, logger, node, tableSvc, applyCh, consensusSrv, querySrv)
	if err != nil {
		node.Stop()
		return err
	}
	defer app.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return app.Run(ctx)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
