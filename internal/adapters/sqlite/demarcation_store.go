// Package sqlite stores demarcations in a local SQLite file for field
// deployments without a Postgres server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

// timeLayout sorts lexicographically, so created_at can be ordered as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements ports.DemarcationRepository on a modernc.org/sqlite file.
type Store struct {
	db *sqlx.DB
}

// Open opens the database file at dsn in WAL mode.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS demarcations (
	id               TEXT PRIMARY KEY,
	producer_id      TEXT NOT NULL,
	points           TEXT NOT NULL,
	area_hectares    REAL NOT NULL,
	perimeter_meters REAL NOT NULL,
	min_lat          REAL NOT NULL,
	min_lng          REAL NOT NULL,
	max_lat          REAL NOT NULL,
	max_lng          REAL NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_demarcations_producer ON demarcations(producer_id, created_at);
CREATE INDEX IF NOT EXISTS idx_demarcations_bbox ON demarcations(min_lat, max_lat, min_lng, max_lng);
`

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// row is the table shape; points are stored as a JSON array.
type row struct {
	ID              string  `db:"id"`
	ProducerID      string  `db:"producer_id"`
	Points          string  `db:"points"`
	AreaHectares    float64 `db:"area_hectares"`
	PerimeterMeters float64 `db:"perimeter_meters"`
	MinLat          float64 `db:"min_lat"`
	MinLng          float64 `db:"min_lng"`
	MaxLat          float64 `db:"max_lat"`
	MaxLng          float64 `db:"max_lng"`
	CreatedAt       string  `db:"created_at"`
}

func toRow(d *domain.Demarcation) (row, error) {
	points, err := json.Marshal(d.Points)
	if err != nil {
		return row{}, fmt.Errorf("sqlite: encode points of %s: %w", d.ID, err)
	}
	return row{
		ID: d.ID, ProducerID: d.ProducerID, Points: string(points),
		AreaHectares: d.AreaHectares, PerimeterMeters: d.PerimeterMeters,
		MinLat: d.Bounds.MinLat, MinLng: d.Bounds.MinLng,
		MaxLat: d.Bounds.MaxLat, MaxLng: d.Bounds.MaxLng,
		CreatedAt: d.CreatedAt.UTC().Format(timeLayout),
	}, nil
}

func (r row) demarcation() (domain.Demarcation, error) {
	d := domain.Demarcation{
		ID: r.ID, ProducerID: r.ProducerID,
		AreaHectares: r.AreaHectares, PerimeterMeters: r.PerimeterMeters,
		Bounds: domain.Bounds{MinLat: r.MinLat, MinLng: r.MinLng, MaxLat: r.MaxLat, MaxLng: r.MaxLng},
	}
	if err := json.Unmarshal([]byte(r.Points), &d.Points); err != nil {
		return d, fmt.Errorf("sqlite: decode points of %s: %w", r.ID, err)
	}
	created, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return d, fmt.Errorf("sqlite: created_at of %s: %w", r.ID, err)
	}
	d.CreatedAt = created
	return d, nil
}

func (s *Store) Create(ctx context.Context, d *domain.Demarcation) error {
	r, err := toRow(d)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO demarcations (id, producer_id, points, area_hectares, perimeter_meters,
			min_lat, min_lng, max_lat, max_lng, created_at)
		VALUES (:id, :producer_id, :points, :area_hectares, :perimeter_meters,
			:min_lat, :min_lng, :max_lat, :max_lng, :created_at)`, r)
	if err != nil {
		return fmt.Errorf("sqlite: insert %s: %w", d.ID, err)
	}
	return nil
}

const selectAll = `SELECT id, producer_id, points, area_hectares, perimeter_meters,
	min_lat, min_lng, max_lat, max_lng, created_at FROM demarcations`

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Demarcation, error) {
	var r row
	err := s.db.GetContext(ctx, &r, selectAll+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("demarcation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s: %w", id, err)
	}
	d, err := r.demarcation()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListByProducer returns a producer's demarcations, newest first.
func (s *Store) ListByProducer(ctx context.Context, producerID string) ([]domain.Demarcation, error) {
	return s.selectMany(ctx, selectAll+` WHERE producer_id = ? ORDER BY created_at DESC`, producerID)
}

// ListInBounds returns demarcations whose bounding box intersects b.
func (s *Store) ListInBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.Demarcation, error) {
	return s.selectMany(ctx, selectAll+`
		WHERE min_lat <= ? AND max_lat >= ? AND min_lng <= ? AND max_lng >= ?
		ORDER BY created_at DESC
		LIMIT ?`,
		b.MaxLat, b.MinLat, b.MaxLng, b.MinLng, limit,
	)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM demarcations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", id, err)
	} else if n == 0 {
		return fmt.Errorf("demarcation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) selectMany(ctx context.Context, query string, args ...any) ([]domain.Demarcation, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: select demarcations: %w", err)
	}
	out := make([]domain.Demarcation, 0, len(rows))
	for _, r := range rows {
		d, err := r.demarcation()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
