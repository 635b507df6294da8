// Package config loads TabRi's YAML configuration file.
//
// One file selects the storage backend, log output, index-cache tuning, and
// snapshot credentials. Every section has defaults, so a partial file (or no
// file at all) is valid.
//
// Usage:
//
//	cfg, err := config.Load("tabri.yaml")
//	if err != nil { ... }
//	store, err := csvdir.New(cfg.Tabular())
package config

import (
	"bytes"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/TabRi/internal/errs"
	"github.com/koustreak/TabRi/internal/filestore"
	"github.com/koustreak/TabRi/internal/tabular"
)

// Config is the full configuration file.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Cache    CacheConfig    `yaml:"cache"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// LogConfig selects log verbosity and rendering.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error. Default: info.
	Level string `yaml:"level"`

	// Format is "console" or "json". Default: console.
	Format string `yaml:"format"`
}

// StorageConfig selects and tunes the tabular backend.
type StorageConfig struct {
	// Driver is one of memory, csv, postgres, mysql. Default: memory.
	Driver string `yaml:"driver"`

	// Dir is the table directory for the csv driver.
	Dir string `yaml:"dir"`

	// DSN is the connection string for the postgres and mysql drivers.
	DSN string `yaml:"dsn"`

	MaxConns        int32         `yaml:"maxConns"`
	MinConns        int32         `yaml:"minConns"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime"`
	ConnectTimeout  time.Duration `yaml:"connectTimeout"`
}

// CacheConfig tunes the repository field indexes.
type CacheConfig struct {
	// IndexTTL bounds how long a field index may serve lookups without a
	// rebuild. Default: 5m.
	IndexTTL time.Duration `yaml:"indexTTL"`
}

// SnapshotConfig holds the object-store credentials for table snapshots.
type SnapshotConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Storage: StorageConfig{
			Driver:          string(tabular.DriverMemory),
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			ConnectTimeout:  10 * time.Second,
		},
		Cache: CacheConfig{IndexTTL: 5 * time.Minute},
		Snapshot: SnapshotConfig{
			Bucket: "tabri-snapshots",
		},
	}
}

// Load reads path and overlays it on the defaults. Unknown keys are
// rejected — a typoed key silently falling back to a default is worse than
// an error at startup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "cannot read config file "+path, err)
	}
	return Parse(data)
}

// Parse decodes raw YAML bytes over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "cannot parse config file", err)
	}

	switch tabular.Driver(cfg.Storage.Driver) {
	case tabular.DriverMemory, tabular.DriverCSV, tabular.DriverPostgres, tabular.DriverMySQL:
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput,
			"unknown storage driver %q", cfg.Storage.Driver)
	}
	return cfg, nil
}

// Tabular maps the storage section onto a tabular.Config.
func (c *Config) Tabular() *tabular.Config {
	return &tabular.Config{
		Driver:          tabular.Driver(c.Storage.Driver),
		Dir:             c.Storage.Dir,
		DSN:             c.Storage.DSN,
		MaxConns:        c.Storage.MaxConns,
		MinConns:        c.Storage.MinConns,
		MaxConnLifetime: c.Storage.MaxConnLifetime,
		MaxConnIdleTime: c.Storage.MaxConnIdleTime,
		ConnectTimeout:  c.Storage.ConnectTimeout,
	}
}

// Filestore maps the snapshot section onto a filestore.Config.
func (c *Config) Filestore() *filestore.Config {
	return &filestore.Config{
		Provider:  filestore.ProviderMinIO,
		Endpoint:  c.Snapshot.Endpoint,
		AccessKey: c.Snapshot.AccessKey,
		SecretKey: c.Snapshot.SecretKey,
		UseSSL:    c.Snapshot.UseSSL,
		Bucket:    c.Snapshot.Bucket,
	}
}
