package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc"

	"github.com/tems/tems/pkg/risk"
	"github.com/tems/tems/server/internal/alerts"
	"github.com/tems/tems/server/internal/api"
	"github.com/tems/tems/server/internal/compute"
	"github.com/tems/tems/server/internal/config"
	"github.com/tems/tems/server/internal/metrics"
	"github.com/tems/tems/server/internal/receiver"
	"github.com/tems/tems/server/internal/store"
	"github.com/tems/tems/server/internal/ws"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "dotenv file holding webhook *_env values (optional)")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("tems-server starting", "config", *configPath)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load env file", "path", *envFile, "err", err)
		os.Exit(1)
	}

	// Without a config file the server still serves /predict and accepts
	// exports, with defaults and no alert rules.
	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("config file not found, using defaults", "config", *configPath)
		cfg = config.Default()
	case err != nil:
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	sc := cfg.Server
	level.Set(sc.SlogLevel())

	slog.Info("config loaded",
		"grpc_port", sc.GRPCPort,
		"http_port", sc.HTTPPort,
		"window_max_events", sc.Window.MaxEvents,
		"window_max_age", sc.Window.MaxAge,
		"snapshot_ttl", sc.Snapshot.TTL,
		"alert_rules", len(sc.Alerts.Rules),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	pipeline := risk.New()

	// One scoring window per source, rescored on every export.
	engine := compute.NewEngine(compute.Window{
		MaxEvents: sc.Window.MaxEvents,
		MaxAge:    sc.Window.MaxAge,
	}, pipeline)

	alertEngine, err := alerts.New(sc.Alerts, m)
	if err != nil {
		slog.Error("failed to build alert rules", "err", err)
		os.Exit(1)
	}

	// Result store with background TTL eviction. An evicted source also
	// loses its window, its Prometheus series and its firing alerts.
	st := store.New(sc.Snapshot.TTL)
	st.OnEvict(func(id string) {
		engine.Forget(id)
		m.ForgetSource(id)
		alertEngine.Forget(id)
	})
	go st.Run(ctx)

	rec := receiver.New(engine, st, alertEngine, m)

	// OTLP/gRPC receiver.
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(receiver.LoggingInterceptor()))
	collogspb.RegisterLogsServiceServer(grpcSrv, rec)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", sc.GRPCPort, "err", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("OTLP/gRPC receiver listening", "port", sc.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	// WebSocket hub: pushes the snapshot every stream interval.
	hub := ws.New(func() api.SnapshotResponse {
		return api.BuildSnapshot(st, alertEngine, time.Now())
	}, sc.Stream.Interval, m)
	go hub.Run(ctx)

	// Combined HTTP server: REST API, /predict, OTLP/HTTP, metrics and stream.
	httpSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", sc.HTTPPort),
		Handler: api.New(api.Options{
			Store:    st,
			Alerts:   alertEngine,
			Metrics:  m,
			Pipeline: pipeline,
			Predict:  sc.Predict,
			OTLP:     rec.HTTPHandler(sc.Predict.MaxBodyBytes),
			Stream:   hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("tems-server shutting down")

	grpcSrv.GracefulStop()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "err", err)
	}
	alertEngine.Wait()
}
