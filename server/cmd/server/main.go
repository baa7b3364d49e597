package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/alerts"
	"github.com/pilotwatch/pilotwatch/server/internal/api"
	"github.com/pilotwatch/pilotwatch/server/internal/archive"
	"github.com/pilotwatch/pilotwatch/server/internal/auth"
	"github.com/pilotwatch/pilotwatch/server/internal/config"
	"github.com/pilotwatch/pilotwatch/server/internal/dashboard"
	"github.com/pilotwatch/pilotwatch/server/internal/events"
	"github.com/pilotwatch/pilotwatch/server/internal/ingest"
	"github.com/pilotwatch/pilotwatch/server/internal/metrics"
	"github.com/pilotwatch/pilotwatch/server/internal/recommend"
	"github.com/pilotwatch/pilotwatch/server/internal/roster"
	"github.com/pilotwatch/pilotwatch/server/internal/store"
	"github.com/pilotwatch/pilotwatch/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file; empty uses built-in defaults")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config (missing file is ignored)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := config.LoadEnv(*envFile); err != nil {
		slog.Error("failed to load env file", "err", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))
	slog.Info("pilotwatch-server starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage", cfg.Storage.Backend,
		"recommendations", cfg.Recommendations.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *configPath); err != nil {
		slog.Error("pilotwatch-server failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, configPath string) error {
	r, err := roster.New(seedPilots(cfg.Roster, time.Now()))
	if err != nil {
		return err
	}

	bus := events.NewBus()
	dash := dashboard.New(dashboard.Options{
		Roster:        r,
		Bus:           bus,
		CountdownTick: cfg.Mission.CountdownTick,
	})
	go dash.Run(ctx)

	// Ended missions: in memory with TTL eviction, optionally archived.
	st := store.New(cfg.Mission.StoreTTL)
	go st.Run(ctx)

	repo, err := archive.Open(cfg.Storage)
	if err != nil {
		return err
	}
	if repo != nil {
		defer repo.Close() //nolint:errcheck
	}
	dash.OnFinalized(func(m types.MissionSession) {
		st.Put(m)
		if repo == nil {
			return
		}
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Save(saveCtx, m); err != nil {
			slog.Error("archive: save failed", "mission", m.MissionID, "err", err)
		}
	})

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	bus.Subscribe(m.Handle)

	// Alerts engine, reloaded when the config file changes.
	alertEngine := alerts.New(cfg.Alerts)
	alertEngine.OnTransition(m.ObserveAlert)
	bus.Subscribe(alertEngine.Handle)
	if configPath != "" {
		go func() {
			if err := config.Watch(ctx, configPath, func(c *config.Config) {
				alertEngine.Reload(c.Alerts)
			}); err != nil {
				slog.Warn("config watch disabled", "err", err)
			}
		}()
	}

	// WebSocket hub: event pushes plus a periodic full snapshot.
	hub := ws.New(dash, cfg.Server.BroadcastInterval)
	bus.Subscribe(hub.Handle)
	go hub.Run(ctx)

	limit := rate.Inf
	if cfg.Ingest.RatePerSecond > 0 {
		limit = rate.Limit(cfg.Ingest.RatePerSecond)
	}
	ingester := ingest.New(dash, limit, cfg.Ingest.Burst)

	// NATS: event fan-out and optional sample ingestion.
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer nc.Drain() //nolint:errcheck
		bus.Subscribe(events.NewForwarder(nc, cfg.NATS.SubjectPrefix).Handle)
		if cfg.NATS.Ingest {
			if _, err := ingester.Subscribe(nc, cfg.NATS.SubjectPrefix+".ingest"); err != nil {
				return err
			}
		}
	}

	authMW := auth.APIKey(cfg.Server.Auth.Mode, cfg.Server.Auth.EffectiveHeader(), cfg.Server.Auth.Key())
	deps := api.Deps{
		Dashboard: dash,
		Ingester:  ingester,
		Store:     st,
		Alerts:    alertEngine,
		Auth:      authMW,
	}
	if repo != nil {
		deps.Archive = repo
	}

	if cfg.Recommendations.Enabled {
		cache, err := recommend.NewCache(cfg.Recommendations.Cache)
		if err != nil {
			return err
		}
		if c, ok := cache.(io.Closer); ok {
			defer c.Close() //nolint:errcheck
		}
		client := recommend.NewChatClient(cfg.Recommendations)
		deps.Recommender = recommend.NewService(client, recommend.OptionsFrom(cfg.Recommendations, cache))
		slog.Info("recommendations enabled",
			"model", cfg.Recommendations.Model,
			"cache", cfg.Recommendations.Cache.Backend,
		)
	}

	router := chi.NewRouter()
	router.Use(m.Middleware)
	if origins := cfg.Server.CORS.AllowedOrigins; len(origins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", cfg.Server.Auth.EffectiveHeader()},
			MaxAge:         300,
		}))
	}
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	router.Mount("/api/v1", api.New(deps))
	router.Handle("/ws/stream", authMW(hub))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("pilotwatch-server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// seedPilots returns the configured roster with metrics computed from the
// starting vitals, or the built-in roster when none is configured.
func seedPilots(cfg config.RosterConfig, now time.Time) []types.Pilot {
	if len(cfg.Pilots) == 0 {
		return roster.DefaultPilots(now)
	}
	out := make([]types.Pilot, 0, len(cfg.Pilots))
	for _, pc := range cfg.Pilots {
		out = append(out, roster.Recompute(pc.Pilot(now), nil))
	}
	return out
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
