package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pilotwatch/pilotwatch/agent/internal/config"
	"github.com/pilotwatch/pilotwatch/agent/internal/shipper"
	"github.com/pilotwatch/pilotwatch/agent/internal/source"
)

func main() {
	configPath := flag.String("config", "agent.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config (missing file is ignored)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load env file", "path", *envFile, "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))
	slog.Info("pilotwatch-agent starting",
		"config", *configPath,
		"server_url", cfg.Agent.ServerURL,
		"sources", len(cfg.Agent.Sources),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ship, err := shipper.New(cfg.Agent)
	if err != nil {
		slog.Error("failed to build shipper", "err", err)
		os.Exit(1)
	}
	shipDone := make(chan struct{})
	go func() {
		ship.Run(ctx)
		close(shipDone)
	}()

	var wg sync.WaitGroup
	for _, src := range cfg.Agent.Sources {
		r, err := source.New(src)
		if err != nil {
			slog.Error("skipping source, could not build reader", "source", src.ID, "err", err)
			continue
		}
		slog.Info("registered source", "id", src.ID, "type", src.Type, "path", src.Path, "follow", src.Follow)
		wg.Add(1)
		go func(src config.Source) {
			defer wg.Done()
			if err := r.Run(ctx, ship.Ship); err != nil {
				slog.Error("source stopped", "source", src.ID, "err", err)
				return
			}
			slog.Info("source finished", "source", src.ID)
		}(src)
	}

	// Sources that are not followed finish on their own; keep shipping until
	// the buffer is empty or a signal arrives.
	go func() {
		wg.Wait()
		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()
		for ship.Pending() > 0 {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
		cancel()
	}()

	<-ctx.Done()
	<-shipDone
	if n := ship.Pending(); n > 0 {
		slog.Warn("pilotwatch-agent exiting with undelivered samples", "pending", n)
	}
	slog.Info("pilotwatch-agent shutting down")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
