package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

const srid = 4326

// DemarcationRepo implements ports.DemarcationRepository with pgx and PostGIS.
type DemarcationRepo struct {
	db *DB
}

// NewDemarcationRepo creates a new DemarcationRepo.
func NewDemarcationRepo(db *DB) *DemarcationRepo {
	return &DemarcationRepo{db: db}
}

const selectDemarcation = `
	SELECT id, producer_id, points, ST_AsEWKB(boundary), area_hectares, perimeter_meters, created_at
	FROM demarcations`

// Create inserts a demarcation with its boundary as a closed polygon.
func (r *DemarcationRepo) Create(ctx context.Context, d *domain.Demarcation) error {
	boundary, err := EncodeBoundary(d.Points)
	if err != nil {
		return err
	}
	points, err := json.Marshal(d.Points)
	if err != nil {
		return fmt.Errorf("encode points: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO demarcations (id, producer_id, boundary, points, area_hectares, perimeter_meters, created_at)
		VALUES ($1, $2, ST_GeomFromEWKB($3), $4, $5, $6, $7)
	`, d.ID, d.ProducerID, boundary, points, d.AreaHectares, d.PerimeterMeters, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert demarcation: %w", err)
	}
	return nil
}

// GetByID returns a demarcation by UUID.
func (r *DemarcationRepo) GetByID(ctx context.Context, id string) (*domain.Demarcation, error) {
	row := r.db.Pool.QueryRow(ctx, selectDemarcation+` WHERE id = $1`, id)
	d, err := scanDemarcation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("demarcation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListByProducer returns a producer's demarcations, newest first.
func (r *DemarcationRepo) ListByProducer(ctx context.Context, producerID string) ([]domain.Demarcation, error) {
	rows, err := r.db.Pool.Query(ctx, selectDemarcation+`
		WHERE producer_id = $1
		ORDER BY created_at DESC
	`, producerID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListInBounds uses the GiST index on boundary to find parcels overlapping the box.
func (r *DemarcationRepo) ListInBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.Demarcation, error) {
	rows, err := r.db.Pool.Query(ctx, selectDemarcation+`
		WHERE boundary && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		ORDER BY created_at DESC
		LIMIT $5
	`, b.MinLng, b.MinLat, b.MaxLng, b.MaxLat, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Delete removes a demarcation.
func (r *DemarcationRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM demarcations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("demarcation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func collect(rows pgx.Rows) ([]domain.Demarcation, error) {
	defer rows.Close()

	var out []domain.Demarcation
	for rows.Next() {
		d, err := scanDemarcation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDemarcation(row pgx.Row) (*domain.Demarcation, error) {
	var (
		d        domain.Demarcation
		points   []byte
		boundary []byte
	)
	if err := row.Scan(&d.ID, &d.ProducerID, &points, &boundary, &d.AreaHectares, &d.PerimeterMeters, &d.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(points, &d.Points); err != nil {
		return nil, fmt.Errorf("decode points of %s: %w", d.ID, err)
	}
	b, err := DecodeBounds(boundary)
	if err != nil {
		return nil, fmt.Errorf("decode boundary of %s: %w", d.ID, err)
	}
	d.Bounds = b
	return &d, nil
}

// EncodeBoundary converts vertices to an EWKB polygon (SRID 4326) with the
// ring closed.
func EncodeBoundary(points []domain.GpsPoint) ([]byte, error) {
	if len(points) < domain.MinPolygonPoints {
		return nil, fmt.Errorf("%w: boundary needs %d vertices, have %d",
			domain.ErrInsufficientPoints, domain.MinPolygonPoints, len(points))
	}
	flat := make([]float64, 0, 2*(len(points)+1))
	for _, p := range points {
		flat = append(flat, p.Lng, p.Lat)
	}
	first, last := points[0], points[len(points)-1]
	if first.Lat != last.Lat || first.Lng != last.Lng {
		flat = append(flat, first.Lng, first.Lat)
	}

	g := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(srid)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, fmt.Errorf("encode boundary: %w", err)
	}
	return data, nil
}

// DecodeBounds returns the extent of an EWKB geometry.
func DecodeBounds(data []byte) (domain.Bounds, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return domain.Bounds{}, err
	}
	b := g.Bounds()
	return domain.Bounds{
		MinLat: b.Min(1), MinLng: b.Min(0),
		MaxLat: b.Max(1), MaxLng: b.Max(0),
	}, nil
}
