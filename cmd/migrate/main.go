package main

import (
	"context"
	"log"
	"os"

	"github.com/samirrijal/agrodemarc/internal/adapters/storage"
	"github.com/samirrijal/agrodemarc/internal/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up>")
	}

	cfg, err := config.Load("agrodemarc-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer store.Close()

	switch os.Args[1] {
	case "up":
		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Printf("migrations applied (%s)", cfg.Database.Driver)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
