// Package config holds the immutable session configuration and its YAML loader.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/koustreak/sqlsession/internal/filestore"
	"github.com/koustreak/sqlsession/internal/logger"
	"go.yaml.in/yaml/v3"
)

// Driver names understood by the session.
const (
	DriverPostgres = "postgres" // jackc/pgx
	DriverPQ       = "pq"       // lib/pq over database/sql
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

const (
	defaultDriverPath        = "./drivers/"
	defaultMinPoolSize       = 1
	defaultMaxPoolSize       = 100
	defaultKeepaliveInterval = 60 * time.Second
	defaultKeepaliveQuery    = "SELECT 1"
	defaultLogLevel          = "error"
	defaultLogFormat         = "json"
)

// Config holds everything needed to open and pool connections for one session.
type Config struct {
	// Driver is the backend implementation (postgres, pq, mysql, sqlite).
	Driver string `yaml:"driver"`

	// URL is the endpoint / DSN. Example: "postgres://localhost:5432/app".
	URL string `yaml:"url"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// DriverPath is the directory searched for driver assets. The sqlite
	// driver resolves relative database files against it.
	DriverPath string `yaml:"driver_path"`

	// MinPoolSize is the number of connections opened eagerly. nil selects
	// the default; an explicit 0 opens connections only on demand.
	MinPoolSize *int `yaml:"min_pool_size"`
	MaxPoolSize int  `yaml:"max_pool_size"`

	Keepalive KeepaliveConfig `yaml:"keepalive"`
	Logger    LoggerConfig    `yaml:"logger"`

	// Export is the object store query results can be uploaded to.
	// Leave the endpoint empty to disable exports.
	Export filestore.Config `yaml:"export"`
}

// KeepaliveConfig controls the periodic probe issued on idle pooled connections.
type KeepaliveConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Query    string        `yaml:"query"`

	// Ping probes with the driver's native ping instead of Query.
	Ping bool `yaml:"ping"`
}

// LoggerConfig mirrors the subset of logger.Config exposed to users.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Int returns a pointer to n, for optional integer fields.
func Int(n int) *int { return &n }

// MinPool returns MinPoolSize, or the default when it is unset.
func (c Config) MinPool() int {
	if c.MinPoolSize == nil {
		return defaultMinPoolSize
	}
	return *c.MinPoolSize
}

// WithDefaults returns a copy of c with every zero field set to its default.
func (c Config) WithDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.DriverPath == "" {
		c.DriverPath = defaultDriverPath
	}
	if c.MinPoolSize == nil {
		c.MinPoolSize = Int(defaultMinPoolSize)
	}
	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.Keepalive.Interval == 0 {
		c.Keepalive.Interval = defaultKeepaliveInterval
	}
	if c.Keepalive.Query == "" {
		c.Keepalive.Query = defaultKeepaliveQuery
	}
	if c.Logger.Level == "" {
		c.Logger.Level = defaultLogLevel
	}
	if c.Logger.Format == "" {
		c.Logger.Format = defaultLogFormat
	}
	return c
}

// Validate reports the first invalid field as a configuration error.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverPQ, DriverMySQL, DriverSQLite:
	default:
		return errs.Configuration("unknown driver %q", c.Driver)
	}
	if strings.TrimSpace(c.URL) == "" {
		return errs.Configuration("url is required")
	}
	if c.MinPool() < 0 {
		return errs.Configuration("min_pool_size must not be negative, got %d", c.MinPool())
	}
	if c.MaxPoolSize < 1 {
		return errs.Configuration("max_pool_size must be at least 1, got %d", c.MaxPoolSize)
	}
	if c.MinPool() > c.MaxPoolSize {
		return errs.Configuration("min_pool_size (%d) exceeds max_pool_size (%d)", c.MinPool(), c.MaxPoolSize)
	}
	if c.Keepalive.Enabled {
		if c.Keepalive.Interval <= 0 {
			return errs.Configuration("keepalive interval must be positive, got %s", c.Keepalive.Interval)
		}
		if !c.Keepalive.Ping && strings.TrimSpace(c.Keepalive.Query) == "" {
			return errs.Configuration("keepalive query is required when keepalive is enabled")
		}
	}
	if !logger.ValidLevel(c.Logger.Level) {
		return errs.Configuration("unknown log level %q", c.Logger.Level)
	}
	return c.Export.Validate()
}

// Load reads a YAML file, expands ${VAR} references, applies environment
// overrides and defaults, and validates the result.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errs.Wrap(errs.ErrKindConfiguration, "unable to read config file", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg after expanding environment references.
func Parse(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return errs.Wrap(errs.ErrKindConfiguration, "invalid config file", err)
	}
	return nil
}

// applyEnvOverrides applies SQLSESSION_* environment variable overrides.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SQLSESSION_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := os.Getenv("SQLSESSION_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("SQLSESSION_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("SQLSESSION_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("SQLSESSION_MIN_POOL_SIZE"); v != "" {
		n, err := envInt("SQLSESSION_MIN_POOL_SIZE", v)
		if err != nil {
			return err
		}
		cfg.MinPoolSize = Int(n)
	}
	if v := os.Getenv("SQLSESSION_MAX_POOL_SIZE"); v != "" {
		n, err := envInt("SQLSESSION_MAX_POOL_SIZE", v)
		if err != nil {
			return err
		}
		cfg.MaxPoolSize = n
	}
	if v := os.Getenv("SQLSESSION_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SQLSESSION_EXPORT_ENDPOINT"); v != "" {
		cfg.Export.Endpoint = v
	}
	if v := os.Getenv("SQLSESSION_EXPORT_ACCESS_KEY"); v != "" {
		cfg.Export.AccessKey = v
	}
	if v := os.Getenv("SQLSESSION_EXPORT_SECRET_KEY"); v != "" {
		cfg.Export.SecretKey = v
	}
	return nil
}

func envInt(name, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindConfiguration, name+" must be an integer", err)
	}
	return n, nil
}
