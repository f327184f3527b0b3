package api

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lifeos/los-coach/internal/store"
)

// GRPCHealth exposes the standard grpc.health.v1 service for orchestrators
// that probe over gRPC. Status follows the store's reachability.
type GRPCHealth struct {
	server   *grpc.Server
	health   *health.Server
	repo     store.Repository
	interval time.Duration
}

// NewGRPCHealth creates the gRPC health server. It reports NOT_SERVING until
// the first successful store ping.
func NewGRPCHealth(repo store.Repository, interval time.Duration) *GRPCHealth {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCHealth{server: srv, health: hs, repo: repo, interval: interval}
}

// Serve probes the store until ctx is done and serves on lis. It returns
// when the server stops.
func (g *GRPCHealth) Serve(ctx context.Context, lis net.Listener) error {
	go g.probe(ctx)
	return g.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}

func (g *GRPCHealth) probe(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		g.check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (g *GRPCHealth) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := g.repo.Ping(pingCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("gRPC health: store unreachable", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
}
