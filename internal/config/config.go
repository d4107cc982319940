package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"shelfsync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks a fatal preflight failure: a required run parameter
// is missing. No row is touched when Load or Validate fails.
var ErrConfiguration = errors.New("invalid configuration")

type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Platform PlatformConfig `yaml:"platform"`
	Sync     SyncConfig     `yaml:"sync"`
	Redis    RedisConfig    `yaml:"redis"`
	Lease    LeaseConfig    `yaml:"lease"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Export   ExportConfig   `yaml:"export"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type SheetsConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
}

type PlatformConfig struct {
	StoreDomain string  `yaml:"store_domain"`
	AccessToken string  `yaml:"access_token"`
	APIVersion  string  `yaml:"api_version"`
	LocationID  string  `yaml:"location_id"`
	RPS         float64 `yaml:"rps"`
	Burst       int     `yaml:"burst"`
}

type SyncConfig struct {
	MaxRowsPerRun int    `yaml:"max_rows_per_run"`
	ErrorMaxLen   int    `yaml:"error_max_len"`
	SetReason     string `yaml:"set_reason"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LeaseConfig struct {
	Key        string `yaml:"key"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type AuditConfig struct {
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	JobName        string `yaml:"job_name"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads an env-expanded YAML config, applies defaults and validates.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate enforces the required run parameters. Every mutating job needs
// all of them, so absence of any is fatal before a run starts.
func (c *Config) Validate() error {
	required := []struct {
		value string
		name  string
	}{
		{c.Sheets.SpreadsheetID, "sheets.spreadsheet_id"},
		{c.Sheets.SheetName, "sheets.sheet_name"},
		{c.Sheets.CredentialsFile, "sheets.credentials_file"},
		{c.Platform.StoreDomain, "platform.store_domain"},
		{c.Platform.AccessToken, "platform.access_token"},
		{c.Platform.LocationID, "platform.location_id"},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s is required", ErrConfiguration, r.name)
		}
	}
	if c.Sync.MaxRowsPerRun <= 0 {
		return fmt.Errorf("%w: sync.max_rows_per_run must be positive", ErrConfiguration)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "shelfsync"
	}
	if c.Platform.APIVersion == "" {
		c.Platform.APIVersion = "2024-07"
	}
	if c.Platform.RPS == 0 {
		c.Platform.RPS = 2
	}
	if c.Platform.Burst == 0 {
		c.Platform.Burst = 4
	}
	if c.Sync.MaxRowsPerRun == 0 {
		c.Sync.MaxRowsPerRun = models.DefaultMaxRowsPerRun
	}
	if c.Sync.ErrorMaxLen == 0 {
		c.Sync.ErrorMaxLen = models.DefaultErrorMaxLen
	}
	if c.Sync.SetReason == "" {
		c.Sync.SetReason = "correction"
	}
	if c.Lease.Key == "" {
		c.Lease.Key = "shelfsync:run_lease"
	}
	if c.Lease.TTLSeconds == 0 {
		c.Lease.TTLSeconds = models.DefaultLeaseTTLSeconds
	}
	if c.Audit.Path == "" {
		c.Audit.Path = "data/shelfsync.db"
	}
	if c.Metrics.JobName == "" {
		c.Metrics.JobName = "shelfsync"
	}
	if c.Export.Path == "" {
		c.Export.Path = "exports"
	}
}
