package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("agrodemarc-test")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Capture.WalkingInterval)
	assert.Equal(t, 10*time.Second, cfg.Capture.PositionTimeout)
	assert.Equal(t, 10.0, cfg.Capture.AccuracyWarningMeters)
	assert.Equal(t, "keep", cfg.Capture.LateFixPolicy)
	assert.Equal(t, "planar", cfg.Capture.AreaMethod)
	assert.Equal(t, "agrodemarc-test", cfg.Telemetry.ServiceName)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AGRODEMARC_DATABASE_DRIVER", "sqlite")
	t.Setenv("AGRODEMARC_CAPTURE_WALKING_INTERVAL", "2s")
	t.Setenv("AGRODEMARC_CAPTURE_AREA_METHOD", "geodesic")

	cfg, err := Load("agrodemarc-test")
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.Capture.WalkingInterval)
	assert.Equal(t, "geodesic", cfg.Capture.AreaMethod)
}

func TestValidate_CollectsProblems(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("agrodemarc-test")
	require.NoError(t, err)

	cfg.Database.Driver = "oracle"
	cfg.Capture.LateFixPolicy = "queue"
	cfg.Capture.WalkingInterval = 0

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "capture.late_fix_policy")
	assert.Contains(t, err.Error(), "capture.walking_interval")
}

func TestValidate_MemoryDriverNeedsNoHost(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("agrodemarc-test")
	require.NoError(t, err)

	cfg.Database.Driver = DriverMemory
	cfg.Database.Host = ""
	assert.NoError(t, cfg.Validate())
}
