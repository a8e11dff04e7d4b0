package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "dictation-orchestrator/internal/api/grpc"
	"dictation-orchestrator/internal/app"
	"dictation-orchestrator/internal/config"
	httpapi "dictation-orchestrator/internal/http"
	"dictation-orchestrator/internal/observability"
	"dictation-orchestrator/internal/observability/logging"
	"dictation-orchestrator/internal/observability/metrics"
)

func main() {
	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env", "", "Path to .env file")
	flag.StringVar(&overrides.GRPCPort, "grpc-port", "", "gRPC listen port (overrides GRPC_PORT)")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.CloudProvider, "cloud", "", "Cloud engine: none, mock or google (overrides STT_CLOUD_PROVIDER)")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Observability.LogLevel
	logCfg.Format = cfg.Observability.LogFormat
	logging.Init(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Dictation orchestrator stopped with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		return err
	}

	server := grpc.NewServer(observability.ServerOptions(metrics.DefaultMetrics)...)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Register application services
	grpcapi.Register(server, application)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(server)

	httpServer := &http.Server{
		Addr:              cfg.Service.HTTPAddr,
		Handler:           httpapi.NewRouter(application, logging.WithComponent("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	obsServer := observability.NewServer(cfg.Observability.MetricsAddr, application.Ready)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := application.Start(gctx); err != nil {
			return err
		}
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("Dictation orchestrator gRPC server started")
		return server.Serve(lis)
	})

	g.Go(func() error {
		log.Info().Str("addr", cfg.Service.HTTPAddr).Msg("Dictation orchestrator HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	obsServer.Start()

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down servers")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
		defer cancel()

		stopped := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			log.Warn().Msg("Graceful gRPC stop timed out, forcing")
			server.Stop()
		}

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown error")
		}
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Observability server shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
