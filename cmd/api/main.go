package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/agrodemarc/internal/adapters/http"
	natsadapter "github.com/samirrijal/agrodemarc/internal/adapters/nats"
	"github.com/samirrijal/agrodemarc/internal/adapters/notify"
	"github.com/samirrijal/agrodemarc/internal/adapters/positioning"
	"github.com/samirrijal/agrodemarc/internal/adapters/postgres"
	"github.com/samirrijal/agrodemarc/internal/adapters/render"
	"github.com/samirrijal/agrodemarc/internal/adapters/scheduler"
	"github.com/samirrijal/agrodemarc/internal/adapters/storage"
	"github.com/samirrijal/agrodemarc/internal/adapters/valkey"
	"github.com/samirrijal/agrodemarc/internal/core/domain"
	"github.com/samirrijal/agrodemarc/internal/core/ports"
	"github.com/samirrijal/agrodemarc/internal/core/usecases"
	"github.com/samirrijal/agrodemarc/internal/pkg/config"
	"github.com/samirrijal/agrodemarc/internal/pkg/geospatial"
	"github.com/samirrijal/agrodemarc/internal/pkg/logging"
	"github.com/samirrijal/agrodemarc/internal/pkg/metrics"
	"github.com/samirrijal/agrodemarc/internal/pkg/telemetry"
	"github.com/samirrijal/agrodemarc/internal/workflows"
)

func main() {
	cfg, err := config.Load("agrodemarc-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	// Database
	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if store.Pool != nil {
		go reportPoolStats(ctx, store.Pool)
	}

	// Cache
	var (
		cache       ports.CacheService
		cachePinger http.Pinger
	)
	if cfg.Valkey.Addr != "" {
		vc, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer vc.Close()
			cache, cachePinger = vc, vc
		}
	}

	// NATS
	var (
		events   ports.EventPublisher
		frames   render.FrameSink
		natsConn = natsConnection(cfg.NATS.URL)
	)
	if natsConn != nil {
		defer natsConn.Close()
	}
	if cfg.NATS.URL != "" {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			events = pub
			frames = pub
		}
	}

	// Capture collaborators
	hub := positioning.NewHub(cfg.Capture.MaxFixAge)
	renderer := render.NewMapRenderer(frames)

	var downstream ports.Notifier
	if events != nil {
		downstream = notify.NewPublisherNotifier(events)
	}

	persister, closePersister := newPersister(cfg, store.Repo, cache, events)
	defer closePersister()

	capture, err := captureConfig(cfg.Capture)
	if err != nil {
		log.Fatalf("capture config: %v", err)
	}

	svc := usecases.NewDemarcationService(usecases.ServiceDeps{
		Repo:      store.Repo,
		Cache:     cache,
		Positions: hub,
		Scheduler: scheduler.Ticker{},
		Persister: persister,
		Notifier:  notify.NewLogger(downstream),
		Listeners: []ports.SessionListener{renderer},
		Capture:   capture,
	})

	// Device fixes relayed over NATS
	if cfg.NATS.URL != "" {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats fix subscription unavailable", "error", err)
		} else {
			defer sub.Close()
			if err := sub.SubscribeFixes(ctx, relayFix(svc, hub)); err != nil {
				slog.Warn("subscribe fixes failed", "error", err)
			}
		}
	}

	deps := &http.Dependencies{
		Demarcations: svc,
		Positions:    hub,
		Renderer:     renderer,
		NATS:         natsConn,
		DB:           store,
		Cache:        cachePinger,
		DocsPath:     cfg.Server.DocsPath,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    2 * 1024 * 1024, // measure requests may carry long tracks
		AppName:      "agrodemarc API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, If-None-Match",
		ExposeHeaders:    "Location, ETag, Link",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "driver", cfg.Database.Driver, "temporal", cfg.Temporal.Enabled)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	// Stops walking timers and releases device feeds.
	svc.Shutdown(shutdownCtx)
	if err := renderer.Close(shutdownCtx); err != nil {
		slog.Warn("map frames not flushed", "error", err)
	}

	slog.Info("server stopped")
}

// captureConfig converts the configured capture section.
func captureConfig(c config.CaptureConfig) (usecases.CaptureConfig, error) {
	policy, err := usecases.ParseLateFixPolicy(c.LateFixPolicy)
	if err != nil {
		return usecases.CaptureConfig{}, err
	}
	method, err := geospatial.ParseAreaMethod(c.AreaMethod)
	if err != nil {
		return usecases.CaptureConfig{}, err
	}
	return usecases.CaptureConfig{
		WalkingInterval:       c.WalkingInterval,
		PositionTimeout:       c.PositionTimeout,
		AccuracyWarningMeters: c.AccuracyWarningMeters,
		ManualAccuracyMeters:  c.ManualAccuracyMeters,
		LateFixPolicy:         policy,
		AreaMethod:            method,
	}, nil
}

// newPersister picks the durable workflow hand-off when Temporal is enabled
// and falls back to writing the repository directly.
func newPersister(cfg *config.Config, repo ports.DemarcationRepository, cache ports.CacheService, events ports.EventPublisher) (ports.DemarcationPersister, func()) {
	direct := usecases.NewRepositoryPersister(repo, cache, events)
	if !cfg.Temporal.Enabled {
		return direct, func() {}
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		slog.Warn("temporal unavailable, saving directly", "error", err)
		return direct, func() {}
	}
	return workflows.NewTemporalPersister(c, cfg.Temporal.TaskQueue), c.Close
}

// relayFix routes a device fix from NATS to the session's position feed.
// Fixes for sessions this instance does not own are dropped.
func relayFix(svc *usecases.DemarcationService, hub *positioning.Hub) func(context.Context, string, domain.Fix, string) error {
	return func(ctx context.Context, sessionID string, fix domain.Fix, failure string) error {
		if _, err := svc.Session(sessionID); err != nil {
			slog.DebugContext(ctx, "fix for unknown session dropped", "session_id", sessionID)
			return nil
		}
		metrics.FixesReceived.WithLabelValues("nats").Inc()
		var err error
		if failure != "" {
			err = hub.Fail(sessionID, failure)
		} else {
			err = hub.Push(sessionID, fix)
		}
		if errors.Is(err, domain.ErrNotFound) {
			// Closed between the lookup above and delivery.
			slog.DebugContext(ctx, "fix for released session dropped", "session_id", sessionID)
			return nil
		}
		return err
	}
}

// natsConnection opens the raw connection the WebSocket relay subscribes on.
func natsConnection(url string) *nats.Conn {
	if url == "" {
		return nil
	}
	nc, err := natsadapter.RawConn(url)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
		return nil
	}
	return nc
}

// reportPoolStats refreshes the db pool gauges until ctx is done.
func reportPoolStats(ctx context.Context, pool postgres.Pool) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		metrics.UpdateDBPoolMetrics(pool.Stat())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
