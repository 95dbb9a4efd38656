package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Completion service (Anthropic)
	LLM LLMConfig

	// External data providers
	MarketData MarketDataConfig
	News       NewsConfig

	// Quota
	Quota QuotaConfig

	// Market calendar
	Calendar CalendarConfig

	// Ledger pricing
	Pricing PricingConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// LLMConfig holds completion service configuration
type LLMConfig struct {
	APIKey      string
	Model       string // default model; per-call overrides go through CallOptions
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration

	// Request pacing against the provider
	RequestsPerSecond float64
	Burst             int
}

// MarketDataConfig holds the OHLCV provider configuration
type MarketDataConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewsConfig holds the headline provider configuration
type NewsConfig struct {
	BaseURL      string
	MaxHeadlines int
}

// QuotaConfig holds quota guard configuration
type QuotaConfig struct {
	// Distinct instruments per rolling window by plan
	FreeLimit int
	ProLimit  int
}

// CalendarConfig holds market calendar configuration
type CalendarConfig struct {
	// Local market timezone (IANA name)
	Timezone string
	// Session cutoff used for validity and quota windows
	CutoffHour   int
	CutoffMinute int
	// Comma-separated closed dates, "2006-01-02"
	Holidays string
}

// PricingConfig holds token pricing for the usage ledger
// 값은 decimal 문자열, 파싱은 ledger에서 수행
type PricingConfig struct {
	InputUSDPerMTok  string
	OutputUSDPerMTok string
	CachedUSDPerMTok string
	USDKRW           string // FX rate for the secondary currency
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8091"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "pythia"),
			User:            getEnv("DB_USER", "pythia"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		LLM: LLMConfig{
			APIKey:            getEnv("ANTHROPIC_API_KEY", ""),
			Model:             getEnv("LLM_MODEL", "claude-sonnet-4-20250514"),
			MaxTokens:         getEnvAsInt("LLM_MAX_TOKENS", 4096),
			Temperature:       getEnvAsFloat("LLM_TEMPERATURE", 0.2),
			Timeout:           getEnvAsDuration("LLM_TIMEOUT", "90s"),
			RequestsPerSecond: getEnvAsFloat("LLM_RPS", 2),
			Burst:             getEnvAsInt("LLM_BURST", 4),
		},

		MarketData: MarketDataConfig{
			BaseURL: getEnv("MARKET_DATA_BASE_URL", "https://api.upbroker.example.com"),
			APIKey:  getEnv("MARKET_DATA_API_KEY", ""),
			Timeout: getEnvAsDuration("MARKET_DATA_TIMEOUT", "15s"),
		},

		News: NewsConfig{
			BaseURL:      getEnv("NEWS_BASE_URL", "https://finance.naver.com"),
			MaxHeadlines: getEnvAsInt("NEWS_MAX_HEADLINES", 10),
		},

		Quota: QuotaConfig{
			FreeLimit: getEnvAsInt("QUOTA_FREE_LIMIT", 3),
			ProLimit:  getEnvAsInt("QUOTA_PRO_LIMIT", 25),
		},

		Calendar: CalendarConfig{
			Timezone:     getEnv("MARKET_TIMEZONE", "Asia/Seoul"),
			CutoffHour:   getEnvAsInt("MARKET_CUTOFF_HOUR", 15),
			CutoffMinute: getEnvAsInt("MARKET_CUTOFF_MINUTE", 30),
			Holidays:     getEnv("MARKET_HOLIDAYS", ""),
		},

		Pricing: PricingConfig{
			InputUSDPerMTok:  getEnv("PRICING_INPUT_USD_MTOK", "3.00"),
			OutputUSDPerMTok: getEnv("PRICING_OUTPUT_USD_MTOK", "15.00"),
			CachedUSDPerMTok: getEnv("PRICING_CACHED_USD_MTOK", "0.30"),
			USDKRW:           getEnv("PRICING_USD_KRW", "1380"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Quota.FreeLimit <= 0 || c.Quota.ProLimit <= 0 {
		return fmt.Errorf("quota limits must be positive")
	}

	if c.Calendar.CutoffHour < 0 || c.Calendar.CutoffHour > 23 ||
		c.Calendar.CutoffMinute < 0 || c.Calendar.CutoffMinute > 59 {
		return fmt.Errorf("invalid market cutoff time %02d:%02d", c.Calendar.CutoffHour, c.Calendar.CutoffMinute)
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
