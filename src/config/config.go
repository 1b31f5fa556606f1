package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type AppConfig struct {
	Port         string
	DatabasePath string
	LogLevel     string

	// Tolerance is the default absolute amount difference allowed before a
	// pair is flagged as an AMOUNT_DIFFERENCE break. Requests may override it.
	Tolerance decimal.Decimal

	MaxUploadSizeBytes int64

	// Advisory capability settings. An empty API key disables the capability
	// and every annotation degrades to the deterministic fallback.
	AdvisoryAPIKey  string
	AdvisoryModel   string
	AdvisoryBaseURL string
	AdvisoryTimeout time.Duration
}

// AdvisoryEnabled reports whether the advisory capability is configured.
func (c *AppConfig) AdvisoryEnabled() bool {
	return c.AdvisoryAPIKey != ""
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	toleranceStr := getEnv("RECON_TOLERANCE", "0.0")
	tolerance, err := decimal.NewFromString(toleranceStr)
	if err != nil || tolerance.IsNegative() {
		log.Printf("WARNING: Invalid RECON_TOLERANCE %q. Using default 0.0. Error: %v", toleranceStr, err)
		tolerance = decimal.Zero
	}

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./divrecon.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Tolerance:          tolerance,
		MaxUploadSizeBytes: maxUploadSizeBytes,

		AdvisoryAPIKey:  os.Getenv("OPENAI_API_KEY"),
		AdvisoryModel:   getEnv("ADVISORY_MODEL", "gpt-4o-mini"),
		AdvisoryBaseURL: os.Getenv("OPENAI_BASE_URL"),
		AdvisoryTimeout: getEnvAsDuration("ADVISORY_TIMEOUT", 30*time.Second),
	}

	if !Cfg.AdvisoryEnabled() {
		log.Println("OPENAI_API_KEY not set; advisory capability disabled, breaks will use fallback annotations.")
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, Tolerance=%s, Advisory=%t",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.Tolerance.String(), Cfg.AdvisoryEnabled())
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		log.Printf("Duration value for %s not set or empty, using default: %s", key, fallback.String())
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
