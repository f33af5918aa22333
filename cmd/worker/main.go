package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/agrodemarc/internal/adapters/nats"
	"github.com/samirrijal/agrodemarc/internal/adapters/storage"
	"github.com/samirrijal/agrodemarc/internal/adapters/valkey"
	"github.com/samirrijal/agrodemarc/internal/pkg/config"
	"github.com/samirrijal/agrodemarc/internal/pkg/logging"
	"github.com/samirrijal/agrodemarc/internal/workflows"
)

func main() {
	cfg, err := config.Load("agrodemarc-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer store.Close()

	acts := &workflows.Activities{Repo: store.Repo}

	if cfg.Valkey.Addr != "" {
		cache, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable, cache invalidation skipped", "error", err)
		} else {
			defer cache.Close()
			acts.Cache = cache
		}
	}

	if cfg.NATS.URL != "" {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, saved events skipped", "error", err)
		} else {
			defer pub.Close()
			acts.Events = pub
		}
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.PersistDemarcationWorkflow)
	w.RegisterActivity(acts)

	slog.Info("persist worker started", "task_queue", cfg.Temporal.TaskQueue, "driver", cfg.Database.Driver)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
