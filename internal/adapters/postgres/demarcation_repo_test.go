package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

var columns = []string{"id", "producer_id", "points", "boundary", "area_hectares", "perimeter_meters", "created_at"}

func samplePoints() []domain.GpsPoint {
	return []domain.GpsPoint{
		{ID: "a", Lat: 43.26, Lng: -2.93, Accuracy: 4},
		{ID: "b", Lat: 43.26, Lng: -2.92, Accuracy: 4},
		{ID: "c", Lat: 43.27, Lng: -2.92, Accuracy: 6},
	}
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *DemarcationRepo) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewDemarcationRepo(NewFromPool(mock))
}

func sampleRow(t *testing.T, id string, created time.Time) []any {
	t.Helper()
	pts, err := json.Marshal(samplePoints())
	require.NoError(t, err)
	boundary, err := EncodeBoundary(samplePoints())
	require.NoError(t, err)
	return []any{id, "producer-1", pts, boundary, 12.5, 1400.0, created}
}

func TestEncodeBoundary_ClosesRing(t *testing.T) {
	data, err := EncodeBoundary(samplePoints())
	require.NoError(t, err)

	b, err := DecodeBounds(data)
	require.NoError(t, err)
	assert.Equal(t, domain.Bounds{MinLat: 43.26, MinLng: -2.93, MaxLat: 43.27, MaxLng: -2.92}, b)
}

func TestEncodeBoundary_TooFewPoints(t *testing.T) {
	_, err := EncodeBoundary(samplePoints()[:2])
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)
}

func TestDemarcationRepo_Create(t *testing.T) {
	mock, repo := newMockRepo(t)
	created := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	d := &domain.Demarcation{
		ID: "d1", ProducerID: "producer-1", Points: samplePoints(),
		AreaHectares: 12.5, PerimeterMeters: 1400, CreatedAt: created,
	}

	mock.ExpectExec("INSERT INTO demarcations").
		WithArgs("d1", "producer-1", pgxmock.AnyArg(), pgxmock.AnyArg(), 12.5, 1400.0, created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDemarcationRepo_Create_Error(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectExec("INSERT INTO demarcations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("unique violation"))

	err := repo.Create(context.Background(), &domain.Demarcation{ID: "d1", Points: samplePoints()})
	assert.ErrorContains(t, err, "insert demarcation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDemarcationRepo_GetByID(t *testing.T) {
	mock, repo := newMockRepo(t)
	created := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM demarcations\\s+WHERE id = \\$1").
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows(columns).AddRow(sampleRow(t, "d1", created)...))

	d, err := repo.GetByID(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "producer-1", d.ProducerID)
	assert.Len(t, d.Points, 3)
	assert.Equal(t, "c", d.Points[2].ID)
	assert.Equal(t, 43.27, d.Bounds.MaxLat)
	assert.Equal(t, created, d.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDemarcationRepo_GetByID_NotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery("FROM demarcations").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(columns))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDemarcationRepo_ListByProducer(t *testing.T) {
	mock, repo := newMockRepo(t)
	now := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE producer_id = \\$1").
		WithArgs("producer-1").
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow(sampleRow(t, "d2", now)...).
			AddRow(sampleRow(t, "d1", now.Add(-time.Hour))...))

	ds, err := repo.ListByProducer(context.Background(), "producer-1")
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "d2", ds[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDemarcationRepo_ListInBounds(t *testing.T) {
	mock, repo := newMockRepo(t)
	b := domain.Bounds{MinLat: 43, MinLng: -3, MaxLat: 44, MaxLng: -2}

	mock.ExpectQuery("ST_MakeEnvelope").
		WithArgs(-3.0, 43.0, -2.0, 44.0, 50).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(sampleRow(t, "d1", time.Now().UTC())...))

	ds, err := repo.ListInBounds(context.Background(), b, 50)
	require.NoError(t, err)
	assert.Len(t, ds, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDemarcationRepo_Delete(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectExec("DELETE FROM demarcations").
		WithArgs("d1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM demarcations").
		WithArgs("d1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), "d1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "d1"), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_FreshDB(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	names, err := MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	mock.ExpectExec("pg_advisory_lock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	for _, name := range names {
		mock.ExpectExec(".*").WillReturnResult(pgxmock.NewResult("EXEC", 0))
		mock.ExpectExec("INSERT INTO schema_migrations").
			WithArgs(name).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec("pg_advisory_unlock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_SkipsApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	names, err := MigrationNames()
	require.NoError(t, err)
	applied := pgxmock.NewRows([]string{"filename"})
	for _, name := range names {
		applied.AddRow(name)
	}

	mock.ExpectExec("pg_advisory_lock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM schema_migrations").WillReturnRows(applied)
	mock.ExpectExec("pg_advisory_unlock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}
