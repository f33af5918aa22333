package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	DocsPath     string `mapstructure:"docs_path"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	MaxConns   int32  `mapstructure:"max_conns"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// NATSConfig configures the event bus. An empty URL runs without it.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// ValkeyConfig configures the read cache. An empty address disables caching.
type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// TemporalConfig enables the durable save workflow.
type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// CaptureConfig tunes point capture sessions.
type CaptureConfig struct {
	WalkingInterval       time.Duration `mapstructure:"walking_interval"`
	PositionTimeout       time.Duration `mapstructure:"position_timeout"`
	MaxFixAge             time.Duration `mapstructure:"max_fix_age"`
	AccuracyWarningMeters float64       `mapstructure:"accuracy_warning_meters"`
	ManualAccuracyMeters  float64       `mapstructure:"manual_accuracy_meters"`
	LateFixPolicy         string        `mapstructure:"late_fix_policy"`
	AreaMethod            string        `mapstructure:"area_method"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 20)
	v.SetDefault("server.docs_path", "api/openapi.yaml")
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "agrodemarc")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "agrodemarc")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.sqlite_path", "agrodemarc.db")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "demarcations")
	v.SetDefault("capture.walking_interval", "5s")
	v.SetDefault("capture.position_timeout", "10s")
	v.SetDefault("capture.max_fix_age", "3s")
	v.SetDefault("capture.accuracy_warning_meters", 10.0)
	v.SetDefault("capture.manual_accuracy_meters", 5.0)
	v.SetDefault("capture.late_fix_policy", "keep")
	v.SetDefault("capture.area_method", "planar")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: AGRODEMARC_DATABASE_HOST → database.host
	v.SetEnvPrefix("AGRODEMARC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, "database.sqlite_path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be postgres, sqlite or memory, got %q", c.Database.Driver))
	}

	if c.Temporal.Enabled && c.Temporal.HostPort == "" {
		errs = append(errs, "temporal.host_port is required when temporal is enabled")
	}
	if c.Temporal.Enabled && c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required when temporal is enabled")
	}

	if c.Capture.WalkingInterval <= 0 {
		errs = append(errs, "capture.walking_interval must be positive")
	}
	if c.Capture.PositionTimeout <= 0 {
		errs = append(errs, "capture.position_timeout must be positive")
	}
	if c.Capture.AccuracyWarningMeters <= 0 {
		errs = append(errs, "capture.accuracy_warning_meters must be positive")
	}
	if c.Capture.ManualAccuracyMeters < 0 {
		errs = append(errs, "capture.manual_accuracy_meters must not be negative")
	}
	switch c.Capture.LateFixPolicy {
	case "keep", "discard":
	default:
		errs = append(errs, fmt.Sprintf("capture.late_fix_policy must be keep or discard, got %q", c.Capture.LateFixPolicy))
	}
	switch c.Capture.AreaMethod {
	case "planar", "geodesic":
	default:
		errs = append(errs, fmt.Sprintf("capture.area_method must be planar or geodesic, got %q", c.Capture.AreaMethod))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
