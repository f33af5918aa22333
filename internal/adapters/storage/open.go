// Package storage opens the demarcation repository selected by configuration.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samirrijal/agrodemarc/internal/adapters/memory"
	"github.com/samirrijal/agrodemarc/internal/adapters/postgres"
	"github.com/samirrijal/agrodemarc/internal/adapters/sqlite"
	"github.com/samirrijal/agrodemarc/internal/core/ports"
	"github.com/samirrijal/agrodemarc/internal/pkg/config"
)

// Store is an opened repository together with its lifecycle hooks.
type Store struct {
	Repo ports.DemarcationRepository

	// Pool is set for the postgres driver only.
	Pool postgres.Pool

	ping    func(ctx context.Context) error
	migrate func(ctx context.Context) error
	close   func()
}

// Open connects to the configured database driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DSN(), cfg.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &Store{
			Repo:    postgres.NewDemarcationRepo(db),
			Pool:    db.Pool,
			ping:    db.Ping,
			migrate: func(ctx context.Context) error { return postgres.Migrate(ctx, db.Pool) },
			close:   db.Close,
		}, nil

	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Store{
			Repo:    st,
			ping:    st.Ping,
			migrate: st.Migrate,
			close: func() {
				if err := st.Close(); err != nil {
					slog.Warn("sqlite close failed", "error", err)
				}
			},
		}, nil

	case config.DriverMemory:
		st := memory.NewStore()
		return &Store{
			Repo:    st,
			ping:    st.Ping,
			migrate: func(context.Context) error { return nil },
			close:   func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Ping implements the readiness check.
func (s *Store) Ping(ctx context.Context) error { return s.ping(ctx) }

// Migrate brings the schema up to date.
func (s *Store) Migrate(ctx context.Context) error { return s.migrate(ctx) }

// Close releases the underlying connection.
func (s *Store) Close() { s.close() }
