// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Precious metals price provider
	PriceAPIURL   string        // Base URL of the metals price API
	PriceAPIKey   string        // Optional API key for the price provider
	PriceCacheTTL time.Duration // Freshness window for cached prices

	// Hawl detection job
	DetectionSchedule    string        // Cron spec for the detection job
	DetectionUserTimeout time.Duration // Per-user timeout inside a detection pass

	DefaultNisabBasis string // GOLD or SILVER, used when a user has no preference
	DefaultCurrency   string // ISO currency code, used when a user has no preference

	EncryptionKeyHex string // 64 hex chars -> 32-byte key for at-rest encryption

	Backup *BackupConfig
}

// BackupConfig holds off-site backup configuration.
// Backups are disabled unless a bucket and credentials are provided.
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // S3-compatible endpoint (empty = AWS S3)
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("MIZAN_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		PriceAPIURL:   getEnv("PRICE_API_URL", "https://api.metals.dev/v1/latest"),
		PriceAPIKey:   getEnv("PRICE_API_KEY", ""),
		PriceCacheTTL: time.Duration(getEnvAsInt("PRICE_CACHE_TTL_HOURS", 24)) * time.Hour,

		DetectionSchedule:    getEnv("DETECTION_SCHEDULE", "@hourly"),
		DetectionUserTimeout: time.Duration(getEnvAsInt("DETECTION_USER_TIMEOUT_SECONDS", 10)) * time.Second,

		DefaultNisabBasis: getEnv("DEFAULT_NISAB_BASIS", "GOLD"),
		DefaultCurrency:   getEnv("DEFAULT_CURRENCY", "USD"),
		EncryptionKeyHex:  getEnv("ENCRYPTION_KEY", ""),
		Backup:            loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	switch c.DefaultNisabBasis {
	case "GOLD", "SILVER":
	default:
		return fmt.Errorf("DEFAULT_NISAB_BASIS must be GOLD or SILVER, got %q", c.DefaultNisabBasis)
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter ISO code, got %q", c.DefaultCurrency)
	}
	if c.EncryptionKeyHex != "" && len(c.EncryptionKeyHex) != 64 {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (32 bytes)")
	}
	return nil
}

// loadBackupConfig loads off-site backup configuration.
// The backup job only runs when a bucket and credentials are configured.
func loadBackupConfig() *BackupConfig {
	cfg := &BackupConfig{
		Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:          getEnv("BACKUP_S3_REGION", "auto"),
		Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
		AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}
	cfg.Enabled = cfg.Bucket != "" && cfg.AccessKeyID != "" && cfg.SecretAccessKey != ""
	return cfg
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
