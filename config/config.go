// backend/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

// SocrataConfig points at the NYC Open Data portal. AppToken is optional but
// raises the unauthenticated rate limit considerably.
type SocrataConfig struct {
	BaseURL           string `yaml:"base_url"` // e.g. https://data.cityofnewyork.us
	AppToken          string `yaml:"app_token"`
	RequestTimeoutStr string `yaml:"request_timeout"`
	MaxRetries        uint   `yaml:"max_retries"`
	// RowCountSelector is the CSS selector for the metadata block on the
	// dataset landing page that advertises the row count. Used only as a
	// fallback when the count API is unavailable.
	RowCountSelector string `yaml:"row_count_selector"`

	RequestTimeout time.Duration `yaml:"-"`
}

// SyncConfig carries the freshness thresholds and the sync budgets.
type SyncConfig struct {
	StaleThreshold       float64 `yaml:"stale_threshold"`       // score below this = stale
	CriticalThreshold    float64 `yaml:"critical_threshold"`    // score below this = immediate
	ApproachingThreshold float64 `yaml:"approaching_threshold"` // fresh but close to going stale

	BatchSize            int `yaml:"batch_size"`
	DefaultMaxConcurrent int `yaml:"default_max_concurrent"`

	DefaultMaxDurationStr    string `yaml:"default_max_duration"`
	DatasetTimeBudgetStr     string `yaml:"dataset_time_budget"`
	WithinHourAgeStr         string `yaml:"within_hour_age"`
	NeverSyncedMaxAgeStr     string `yaml:"never_synced_max_age"`
	StaleInProgressWindowStr string `yaml:"stale_in_progress_window"`

	AutoSyncEnabled  bool   `yaml:"auto_sync_enabled"`
	CheckIntervalStr string `yaml:"check_interval"`

	DefaultMaxDuration    time.Duration `yaml:"-"`
	DatasetTimeBudget     time.Duration `yaml:"-"`
	WithinHourAge         time.Duration `yaml:"-"`
	NeverSyncedMaxAge     time.Duration `yaml:"-"`
	StaleInProgressWindow time.Duration `yaml:"-"`
	CheckInterval         time.Duration `yaml:"-"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Socrata  SocrataConfig  `yaml:"socrata"`
	Sync     SyncConfig     `yaml:"sync"`
}

var AppConfig Config

// LoadConfig reads the yaml config file, overlays a .env file if one exists,
// and applies environment variable overrides for the values that should not
// live in the yaml (DB credentials, Socrata app token).
func LoadConfig(configPath string) error {
	// .env overlay is best-effort; absence is not an error.
	_ = godotenv.Load()

	file, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(file, &AppConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if v := os.Getenv("DB_HOST"); v != "" {
		AppConfig.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		AppConfig.Database.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		AppConfig.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		AppConfig.Database.Password = v
	}
	if v := os.Getenv("SOCRATA_APP_TOKEN"); v != "" {
		AppConfig.Socrata.AppToken = v
	}

	applyDefaults(&AppConfig)
	return parseDurations(&AppConfig)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Socrata.BaseURL == "" {
		cfg.Socrata.BaseURL = "https://data.cityofnewyork.us"
	}
	if cfg.Socrata.MaxRetries == 0 {
		cfg.Socrata.MaxRetries = 3
	}
	if cfg.Socrata.RowCountSelector == "" {
		cfg.Socrata.RowCountSelector = ".metadata-pair"
	}
	if cfg.Sync.StaleThreshold == 0 {
		cfg.Sync.StaleThreshold = 0.99
	}
	if cfg.Sync.CriticalThreshold == 0 {
		cfg.Sync.CriticalThreshold = 0.90
	}
	if cfg.Sync.ApproachingThreshold == 0 {
		cfg.Sync.ApproachingThreshold = 0.995
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 1000
	}
	if cfg.Sync.DefaultMaxConcurrent == 0 {
		cfg.Sync.DefaultMaxConcurrent = 3
	}
}

func parseDurations(cfg *Config) error {
	var err error
	if cfg.Socrata.RequestTimeout, err = durationOrDefault(cfg.Socrata.RequestTimeoutStr, 30*time.Second); err != nil {
		return fmt.Errorf("failed to parse socrata request_timeout: %w", err)
	}
	if cfg.Sync.DefaultMaxDuration, err = durationOrDefault(cfg.Sync.DefaultMaxDurationStr, 5*time.Minute); err != nil {
		return fmt.Errorf("failed to parse sync default_max_duration: %w", err)
	}
	if cfg.Sync.DatasetTimeBudget, err = durationOrDefault(cfg.Sync.DatasetTimeBudgetStr, 10*time.Minute); err != nil {
		return fmt.Errorf("failed to parse sync dataset_time_budget: %w", err)
	}
	if cfg.Sync.WithinHourAge, err = durationOrDefault(cfg.Sync.WithinHourAgeStr, time.Hour); err != nil {
		return fmt.Errorf("failed to parse sync within_hour_age: %w", err)
	}
	if cfg.Sync.NeverSyncedMaxAge, err = durationOrDefault(cfg.Sync.NeverSyncedMaxAgeStr, 7*24*time.Hour); err != nil {
		return fmt.Errorf("failed to parse sync never_synced_max_age: %w", err)
	}
	if cfg.Sync.StaleInProgressWindow, err = durationOrDefault(cfg.Sync.StaleInProgressWindowStr, 2*time.Hour); err != nil {
		return fmt.Errorf("failed to parse sync stale_in_progress_window: %w", err)
	}
	if cfg.Sync.CheckInterval, err = durationOrDefault(cfg.Sync.CheckIntervalStr, 30*time.Minute); err != nil {
		return fmt.Errorf("failed to parse sync check_interval: %w", err)
	}
	return nil
}

func durationOrDefault(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
