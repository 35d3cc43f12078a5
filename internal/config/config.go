package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/JustJay7/legal-costs-drafter/internal/costs"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Host string
	Port string

	// Database settings
	DatabasePath string
	RateSeedFile string

	// Logging settings
	LogLevel  string
	LogFormat string

	// Cache settings
	CacheSize int
	CacheTTL  time.Duration

	// Bill settings
	VATRate        decimal.Decimal
	CurrencySymbol string
	FirmName       string
	OutputDir      string

	// PDF export
	PDFEnabled   bool
	HeadlessMode bool
	BrowserPath  string
	PDFTimeout   time.Duration

	// Narrative generation
	NarrativeEnabled bool
	OllamaBaseURL    string
	OllamaModel      string
	NarrativeTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnv("PORT", "8080"),
		DatabasePath:   getEnv("DATABASE_PATH", "./data/legal_costs.db"),
		RateSeedFile:   getEnv("RATE_SEED_FILE", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		CurrencySymbol: getEnv("CURRENCY_SYMBOL", "£"),
		FirmName:       getEnv("FIRM_NAME", ""),
		OutputDir:      getEnv("OUTPUT_DIR", "./output"),
		BrowserPath:    getEnv("ROD_BROWSER_PATH", ""),
		OllamaBaseURL:  getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:    getEnv("OLLAMA_MODEL", "llama3"),
	}

	var err error
	cfg.CacheSize, err = strconv.Atoi(getEnv("CACHE_SIZE", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_SIZE: %w", err)
	}

	cacheTTL, err := strconv.Atoi(getEnv("CACHE_TTL", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	cfg.CacheTTL = time.Duration(cacheTTL) * time.Minute

	cfg.VATRate, err = decimal.NewFromString(getEnv("VAT_RATE", "0.20"))
	if err != nil {
		return nil, fmt.Errorf("invalid VAT_RATE: %w", err)
	}
	if err := cfg.Bill().Validate(); err != nil {
		return nil, fmt.Errorf("invalid VAT_RATE: %w", err)
	}

	if cfg.PDFEnabled, err = getBool("PDF_ENABLED", "false"); err != nil {
		return nil, err
	}
	if cfg.HeadlessMode, err = getBool("HEADLESS_MODE", "true"); err != nil {
		return nil, err
	}
	if cfg.NarrativeEnabled, err = getBool("NARRATIVE_ENABLED", "false"); err != nil {
		return nil, err
	}

	pdfTimeout, err := strconv.Atoi(getEnv("PDF_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid PDF_TIMEOUT: %w", err)
	}
	cfg.PDFTimeout = time.Duration(pdfTimeout) * time.Second

	narrativeTimeout, err := strconv.Atoi(getEnv("NARRATIVE_TIMEOUT", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid NARRATIVE_TIMEOUT: %w", err)
	}
	cfg.NarrativeTimeout = time.Duration(narrativeTimeout) * time.Second

	return cfg, nil
}

// Bill returns the settings the bill arithmetic depends on
func (c *Config) Bill() costs.BillConfig {
	return costs.BillConfig{VATRate: c.VATRate}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key, defaultValue string) (bool, error) {
	v, err := strconv.ParseBool(getEnv(key, defaultValue))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
