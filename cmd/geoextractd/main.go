package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/core"
	"github.com/joseph-ayodele/geoextract/internal/ingest"
	"github.com/joseph-ayodele/geoextract/internal/jobs"
	"github.com/joseph-ayodele/geoextract/internal/server"
)

const shutdownGrace = 30 * time.Second

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := core.Open(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	if stack.Archive != nil {
		if err := stack.Archive.Ping(ctx, 5*time.Second); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(server.LoggingInterceptor(logger)))

	var archive server.Archive
	if stack.Archive != nil {
		archive = stack.Archive
	}
	ingestor := ingest.NewFSIngestor(stack.Jobs, jobs.DefaultsFrom(cfg.Defaults), logger)
	jobsService := server.NewJobsService(stack.Jobs, archive, stack.Exporter, logger).WithIngestor(ingestor)
	server.RegisterJobsServer(grpcServer, jobsService)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(server.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	logger.Info("geoextractd listening",
		"addr", cfg.Server.GRPCAddr,
		"max_active_jobs", cfg.Pipeline.MaxActiveJobs,
		"page_workers", cfg.Pipeline.PageWorkers,
		"archive", stack.Archive != nil,
	)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = stack.Close(shutdownCtx)
	grpcServer.GracefulStop()
	logger.Info("stopped")
}
