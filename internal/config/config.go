// Package config loads stockledger settings from defaults, a YAML file, a
// .env file and STOCKLEDGER_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STOCKLEDGER_"

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Picking  PickingConfig  `yaml:"picking"`
	Feed     FeedConfig     `yaml:"feed"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the store. Postgres URLs use pgx; anything else is
// a SQLite file path.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type LogConfig struct {
	// Path, when set, also receives every log line.
	Path   string `yaml:"path"`
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	TokenExpiry time.Duration `yaml:"token_expiry"`
	// AdminUser is the account created when the database is initialized.
	AdminUser string `yaml:"admin_user"`
}

type LedgerConfig struct {
	CommitWindow time.Duration `yaml:"commit_window"`
	MergeWindow  time.Duration `yaml:"merge_window"`
	AuditRetries int           `yaml:"audit_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

type PickingConfig struct {
	SaveDebounce  time.Duration `yaml:"save_debounce"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type FeedConfig struct {
	Driver        string `yaml:"driver"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// SnapshotConfig configures the blob store used for daily snapshots and
// SKU photos.
type SnapshotConfig struct {
	Driver    string        `yaml:"driver"`
	Dir       string        `yaml:"dir"`
	Bucket    string        `yaml:"bucket"`
	Region    string        `yaml:"region"`
	Endpoint  string        `yaml:"endpoint"`
	PathStyle bool          `yaml:"path_style"`
	Interval  time.Duration `yaml:"interval"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a Config with working defaults for a single node.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Database: DatabaseConfig{DSN: "stockledger.sqlite3"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Auth:     AuthConfig{TokenExpiry: 7 * 24 * time.Hour, AdminUser: "Admin"},
		Ledger: LedgerConfig{
			CommitWindow: 500 * time.Millisecond,
			MergeWindow:  5 * time.Minute,
			AuditRetries: 3,
			RetryBackoff: 200 * time.Millisecond,
		},
		Picking: PickingConfig{
			SaveDebounce:  time.Second,
			StaleAfter:    5 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Feed:     FeedConfig{Driver: "memory", SubjectPrefix: "stockledger"},
		Snapshot: SnapshotConfig{Driver: "fs", Dir: "snapshots", Interval: 24 * time.Hour},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json")
	}
	if c.Ledger.CommitWindow <= 0 || c.Ledger.MergeWindow <= 0 {
		return fmt.Errorf("ledger windows must be positive")
	}
	if c.Ledger.AuditRetries < 0 {
		return fmt.Errorf("ledger.audit_retries must not be negative")
	}
	if c.Picking.SaveDebounce <= 0 || c.Picking.StaleAfter <= 0 {
		return fmt.Errorf("picking.save_debounce and picking.stale_after must be positive")
	}
	switch c.Feed.Driver {
	case "memory":
	case "nats":
		if c.Feed.URL == "" {
			return fmt.Errorf("feed.url is required for the nats driver")
		}
	default:
		return fmt.Errorf("feed.driver must be memory or nats")
	}
	switch c.Snapshot.Driver {
	case "fs":
		if c.Snapshot.Dir == "" {
			return fmt.Errorf("snapshot.dir is required for the fs driver")
		}
	case "s3":
		if c.Snapshot.Bucket == "" {
			return fmt.Errorf("snapshot.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("snapshot.driver must be fs or s3")
	}
	return nil
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return config, nil
}

// Load builds the configuration: defaults, then path (if set), then a .env
// file in the working directory (if present), then the environment.
func Load(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		c, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = c
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides fields from STOCKLEDGER_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDR":            &c.Server.Addr,
		"DB":              &c.Database.DSN,
		"LOG":             &c.Log.Path,
		"LOG_LEVEL":       &c.Log.Level,
		"LOG_FORMAT":      &c.Log.Format,
		"ADMIN_USER":      &c.Auth.AdminUser,
		"FEED_DRIVER":     &c.Feed.Driver,
		"NATS_URL":        &c.Feed.URL,
		"NATS_PREFIX":     &c.Feed.SubjectPrefix,
		"SNAPSHOT_DRIVER": &c.Snapshot.Driver,
		"SNAPSHOT_DIR":    &c.Snapshot.Dir,
		"S3_BUCKET":       &c.Snapshot.Bucket,
		"S3_REGION":       &c.Snapshot.Region,
		"S3_ENDPOINT":     &c.Snapshot.Endpoint,
		"METRICS_PATH":    &c.Metrics.Path,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"TOKEN_EXPIRY":      &c.Auth.TokenExpiry,
		"COMMIT_WINDOW":     &c.Ledger.CommitWindow,
		"MERGE_WINDOW":      &c.Ledger.MergeWindow,
		"SAVE_DEBOUNCE":     &c.Picking.SaveDebounce,
		"STALE_AFTER":       &c.Picking.StaleAfter,
		"SNAPSHOT_INTERVAL": &c.Snapshot.Interval,
	}
	for name, dst := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "AUDIT_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sAUDIT_RETRIES: %w", EnvPrefix, err)
		}
		c.Ledger.AuditRetries = n
	}
	bools := map[string]*bool{
		"METRICS":       &c.Metrics.Enabled,
		"S3_PATH_STYLE": &c.Snapshot.PathStyle,
	}
	for name, dst := range bools {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
	}
	return nil
}
