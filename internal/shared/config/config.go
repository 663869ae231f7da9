package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Ledger    LedgerConfig
	FX        FXConfig
	Ingest    IngestConfig
	Scheduler SchedulerConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Driver   string // sqlite or postgres
	Path     string // sqlite file path
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type LedgerConfig struct {
	ReportingCurrency string
	CategoriesPath    string
}

type FXConfig struct {
	Provider  string
	BaseURL   string
	AccessKey string
	Timeout   time.Duration
}

type IngestConfig struct {
	MaildirPath string
	Since       string
}

type SchedulerConfig struct {
	Enabled      bool
	Specs        []string
	RunOnStartup bool
	Mode         string // direct or raw
	RunTimeout   time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	fxTimeout, err := time.ParseDuration(getEnv("FX_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid FX_TIMEOUT: %w", err)
	}

	runTimeout, err := time.ParseDuration(getEnv("SCHEDULER_RUN_TIMEOUT", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_RUN_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "127.0.0.1"),
			AllowedHosts: getListEnv("ALLOWED_HOSTS", ","),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			Path:     getEnv("DB_PATH", "./data/ledger.sqlite"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "ledger"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "mailledger"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Ledger: LedgerConfig{
			ReportingCurrency: strings.ToUpper(getEnv("REPORTING_CURRENCY", "SGD")),
			CategoriesPath:    getEnv("CATEGORIES_PATH", "categories.json"),
		},
		FX: FXConfig{
			Provider:  getEnv("FX_PROVIDER", "exchangerate.host"),
			BaseURL:   getEnv("FX_BASE_URL", "https://api.exchangerate.host"),
			AccessKey: getEnv("FX_ACCESS_KEY", ""),
			Timeout:   fxTimeout,
		},
		Ingest: IngestConfig{
			MaildirPath: getEnv("MAILDIR_PATH", "./data/inbox"),
			Since:       getEnv("INGEST_SINCE", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getBoolEnv("SCHEDULER_ENABLED", true),
			Specs:        splitList(getEnv("SCHEDULER_SPECS", "0 7 * * *;0 19 * * *"), ";"),
			RunOnStartup: getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
			Mode:         strings.ToLower(getEnv("SCHEDULER_MODE", "raw")),
			RunTimeout:   runTimeout,
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "mailledger"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9464"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			return nil, fmt.Errorf("DB_PATH is required when DB_DRIVER=sqlite")
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.Database.Driver)
	}

	if len(cfg.Ledger.ReportingCurrency) != 3 {
		return nil, fmt.Errorf("REPORTING_CURRENCY must be a 3-letter ISO 4217 code")
	}

	if cfg.Scheduler.Mode != "direct" && cfg.Scheduler.Mode != "raw" {
		return nil, fmt.Errorf("SCHEDULER_MODE must be direct or raw, got %q", cfg.Scheduler.Mode)
	}
	if cfg.Scheduler.Enabled && len(cfg.Scheduler.Specs) == 0 {
		return nil, fmt.Errorf("SCHEDULER_SPECS is required when SCHEDULER_ENABLED=true")
	}

	return cfg, nil
}

// ConnectionString returns the DSN for the configured driver.
func (c *DatabaseConfig) ConnectionString() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// IngestSince parses INGEST_SINCE. An empty value means no explicit lower bound.
func (c *IngestConfig) IngestSince() (*time.Time, error) {
	if c.Since == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, c.Since); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid INGEST_SINCE %q (use RFC3339 or YYYY-MM-DD)", c.Since)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getListEnv splits a separated variable, dropping blank items.
func getListEnv(key, sep string) []string {
	return splitList(os.Getenv(key), sep)
}

func splitList(value, sep string) []string {
	var items []string
	for _, item := range strings.Split(value, sep) {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
