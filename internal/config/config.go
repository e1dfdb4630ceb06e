// Package config resolves runtime configuration for a forexstore
// instance. Precedence is explicit parameter, then environment
// variable, then YAML config file, then documented default (spec §6).
// No field has a hidden default: every default used here is written
// out below rather than left to a zero value's accidental meaning.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// BackendMode selects the storage backend.
type BackendMode string

const (
	BackendEmbedded BackendMode = "embedded"
	BackendRemote   BackendMode = "remote"
)

// Config is the fully resolved set of options described in §6.
type Config struct {
	BaseDir             string      `yaml:"base_dir"`
	ArchiveBaseURL      string      `yaml:"archive_base_url"`
	DefaultStartDate    string      `yaml:"default_start_date"` // YYYY-MM
	HTTPTimeoutSeconds  int         `yaml:"http_timeout_seconds"`
	DownloadParallelism int         `yaml:"download_parallelism"`
	BackendMode         BackendMode `yaml:"backend_mode"`

	// Remote-only fields; ignored when BackendMode is embedded.
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	TLSMode  string `yaml:"tls_mode"`
}

// defaults documents the zero-value fallback for every field (§6: "no
// hidden defaults").
func defaults() Config {
	return Config{
		BaseDir:             "./forexstore-data",
		ArchiveBaseURL:      "https://ticks.ex2archive.com/ticks",
		DefaultStartDate:    "2020-01",
		HTTPTimeoutSeconds:  120,
		DownloadParallelism: 4,
		BackendMode:         BackendEmbedded,
		Port:                5432,
		TLSMode:             "prefer",
	}
}

// Overrides carries the explicit, highest-precedence parameters a
// caller passes in code (e.g. CLI flags in a future front end). A nil
// pointer field means "not explicitly set" and falls through to the
// next precedence tier.
type Overrides struct {
	BaseDir             *string
	ArchiveBaseURL      *string
	DefaultStartDate    *string
	HTTPTimeoutSeconds  *int
	DownloadParallelism *int
	BackendMode         *BackendMode
	Host                *string
	Port                *int
	Database            *string
	User                *string
	Password            *string
	TLSMode             *string
}

// envPrefix namespaces every recognized environment variable.
const envPrefix = "FOREXSTORE_"

// Load resolves a Config following explicit-param -> env -> YAML file
// -> default precedence. configPath may be empty, meaning no file
// layer is consulted.
func Load(configPath string, overrides Overrides) (Config, error) {
	cfg := defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", configPath, err)
		}
	}

	applyEnv(&cfg)
	applyOverrides(&cfg, overrides)

	return cfg, validate(cfg)
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(envPrefix + "BASE_DIR"); ok {
		cfg.BaseDir = v
	}
	if v, ok := os.LookupEnv(envPrefix + "ARCHIVE_BASE_URL"); ok {
		cfg.ArchiveBaseURL = v
	}
	if v, ok := os.LookupEnv(envPrefix + "DEFAULT_START_DATE"); ok {
		cfg.DefaultStartDate = v
	}
	if v, ok := envInt(envPrefix + "HTTP_TIMEOUT_SECONDS"); ok {
		cfg.HTTPTimeoutSeconds = v
	}
	if v, ok := envInt(envPrefix + "DOWNLOAD_PARALLELISM"); ok {
		cfg.DownloadParallelism = v
	}
	if v, ok := os.LookupEnv(envPrefix + "BACKEND_MODE"); ok {
		cfg.BackendMode = BackendMode(v)
	}
	if v, ok := os.LookupEnv(envPrefix + "HOST"); ok {
		cfg.Host = v
	}
	if v, ok := envInt(envPrefix + "PORT"); ok {
		cfg.Port = v
	}
	if v, ok := os.LookupEnv(envPrefix + "DATABASE"); ok {
		cfg.Database = v
	}
	if v, ok := os.LookupEnv(envPrefix + "USER"); ok {
		cfg.User = v
	}
	if v, ok := os.LookupEnv(envPrefix + "PASSWORD"); ok {
		cfg.Password = v
	}
	if v, ok := os.LookupEnv(envPrefix + "TLS_MODE"); ok {
		cfg.TLSMode = v
	}
}

func envInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.BaseDir != nil {
		cfg.BaseDir = *o.BaseDir
	}
	if o.ArchiveBaseURL != nil {
		cfg.ArchiveBaseURL = *o.ArchiveBaseURL
	}
	if o.DefaultStartDate != nil {
		cfg.DefaultStartDate = *o.DefaultStartDate
	}
	if o.HTTPTimeoutSeconds != nil {
		cfg.HTTPTimeoutSeconds = *o.HTTPTimeoutSeconds
	}
	if o.DownloadParallelism != nil {
		cfg.DownloadParallelism = *o.DownloadParallelism
	}
	if o.BackendMode != nil {
		cfg.BackendMode = *o.BackendMode
	}
	if o.Host != nil {
		cfg.Host = *o.Host
	}
	if o.Port != nil {
		cfg.Port = *o.Port
	}
	if o.Database != nil {
		cfg.Database = *o.Database
	}
	if o.User != nil {
		cfg.User = *o.User
	}
	if o.Password != nil {
		cfg.Password = *o.Password
	}
	if o.TLSMode != nil {
		cfg.TLSMode = *o.TLSMode
	}
}

func validate(cfg Config) error {
	switch cfg.BackendMode {
	case BackendEmbedded:
		if cfg.BaseDir == "" {
			return fmt.Errorf("config: base_dir is required for backend_mode=embedded")
		}
	case BackendRemote:
		if cfg.Host == "" || cfg.Database == "" {
			return fmt.Errorf("config: host and database are required for backend_mode=remote")
		}
	default:
		return fmt.Errorf("config: unknown backend_mode %q, want embedded or remote", cfg.BackendMode)
	}
	if cfg.DownloadParallelism < 1 {
		return fmt.Errorf("config: download_parallelism must be >= 1, got %d", cfg.DownloadParallelism)
	}
	if cfg.HTTPTimeoutSeconds < 1 {
		return fmt.Errorf("config: http_timeout_seconds must be >= 1, got %d", cfg.HTTPTimeoutSeconds)
	}
	return nil
}
