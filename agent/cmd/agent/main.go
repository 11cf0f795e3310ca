package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tems/tems/agent/internal/collector"
	"github.com/tems/tems/agent/internal/config"
	"github.com/tems/tems/agent/internal/shipper"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "dotenv file holding *_env secrets (optional)")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("tems-agent starting", "config", *configPath)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load env file", "path", *envFile, "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Agent.SlogLevel())
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"sources", len(cfg.Agent.Sources),
		"collect_interval", cfg.Agent.CollectInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := &registry{}
	reg.apply(cfg.Agent.Sources)

	// Sources and log level follow the config file; endpoint, intervals and
	// buffer size take effect on restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			level.Set(updated.Agent.SlogLevel())
			reg.apply(updated.Agent.Sources)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	ship := shipper.New(cfg.Agent)
	go ship.Run(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Agent.CollectInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reg.collect(ctx, ship)
			}
		}
	}()

	<-ctx.Done()
	slog.Info("tems-agent shutting down")
}

// registry holds one collector per configured source. Collectors keep state
// between cycles (log watermarks), so a reload only rebuilds sources whose
// configuration changed.
type registry struct {
	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	src config.Source
	c   collector.Collector
}

func (r *registry) apply(sources []config.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]entry, len(sources))
	for _, src := range sources {
		if old, ok := r.entries[src.ID]; ok && reflect.DeepEqual(old.src, src) {
			next[src.ID] = old
			continue
		}
		c, err := collector.New(src)
		if err != nil {
			slog.Error("skipping source, could not build collector", "source", src.ID, "err", err)
			continue
		}
		next[src.ID] = entry{src: src, c: c}
		slog.Info("registered source", "id", src.ID, "type", src.Type, "endpoint", src.Endpoint)
	}
	for id := range r.entries {
		if _, ok := next[id]; !ok {
			slog.Info("removed source", "id", id)
		}
	}
	if len(next) == 0 {
		slog.Warn("no sources configured, agent will idle")
	}
	r.entries = next
}

// collect polls every source concurrently and ships the batches.
func (r *registry) collect(ctx context.Context, ship *shipper.Shipper) {
	r.mu.Lock()
	entries := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			b, err := e.c.Collect(ctx)
			if err != nil {
				slog.Warn("collect error", "source", e.src.ID, "err", err)
				return
			}
			ship.Ship(b)
			slog.Debug("collected batch",
				"source", e.src.ID,
				"events", len(b.Events),
				"skipped", b.Skipped,
				"failed", b.Err != nil,
			)
		}(e)
	}
	wg.Wait()
}
