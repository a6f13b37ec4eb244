package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Scraper     ScraperConfig
	Merchants   []MerchantConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Persistence PersistenceConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type ScraperConfig struct {
	RequestTimeout time.Duration
	FanoutDeadline time.Duration
	ResultLimit    int
	CacheTTL       time.Duration
	CacheSize      int
	UserAgent      string
	AcceptLanguage string
	RefreshPause   time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type PersistenceConfig struct {
	Enabled      bool
	PollInterval time.Duration
	BatchSize    int
}

type LoggingConfig struct {
	Level  string
	Format string
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Scraper: ScraperConfig{
			RequestTimeout: getDurationOrDefault("SCRAPER_TIMEOUT", 10*time.Second),
			FanoutDeadline: getDurationOrDefault("SCRAPER_FANOUT_DEADLINE", 0),
			ResultLimit:    getIntOrDefault("SCRAPER_RESULT_LIMIT", 10),
			CacheTTL:       getDurationOrDefault("SCRAPER_CACHE_TTL", 0),
			CacheSize:      getIntOrDefault("SCRAPER_CACHE_SIZE", 256),
			UserAgent:      getEnvOrDefault("SCRAPER_USER_AGENT", DefaultUserAgent),
			AcceptLanguage: getEnvOrDefault("SCRAPER_ACCEPT_LANGUAGE", "fr-FR,fr;q=0.9,en;q=0.8"),
			RefreshPause:   getDurationOrDefault("SCRAPER_REFRESH_PAUSE", 3*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "price_scraper"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:price_updates"),
		},
		Persistence: PersistenceConfig{
			Enabled:      getBoolOrDefault("PERSISTENCE_ENABLED", false),
			PollInterval: getDurationOrDefault("OUTBOX_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("OUTBOX_BATCH_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	cfg.Merchants = loadMerchantsFromEnv(DefaultMerchants())

	if path := os.Getenv("MERCHANTS_FILE"); path != "" {
		merchants, err := LoadMerchantsFile(path, cfg.Merchants)
		if err != nil {
			return nil, err
		}
		cfg.Merchants = merchants
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Scraper.RequestTimeout <= 0 {
		return fmt.Errorf("SCRAPER_TIMEOUT must be positive")
	}

	if c.Scraper.ResultLimit < 1 {
		return fmt.Errorf("SCRAPER_RESULT_LIMIT must be at least 1")
	}

	if c.Scraper.FanoutDeadline < 0 {
		return fmt.Errorf("SCRAPER_FANOUT_DEADLINE cannot be negative")
	}

	if c.Scraper.CacheTTL > 0 && c.Scraper.CacheSize < 1 {
		return fmt.Errorf("SCRAPER_CACHE_SIZE must be at least 1 when caching is enabled")
	}

	if len(c.Merchants) == 0 {
		return fmt.Errorf("at least one merchant must be configured")
	}

	seen := make(map[string]bool)
	for _, m := range c.Merchants {
		if err := m.Validate(); err != nil {
			return err
		}
		if seen[string(m.ID)] {
			return fmt.Errorf("duplicate merchant: %s", m.ID)
		}
		seen[string(m.ID)] = true
	}

	if c.Persistence.Enabled && c.Database.Name == "" {
		return fmt.Errorf("database name is required when persistence is enabled")
	}

	return nil
}

// Merchant returns the configuration for id, if present.
func (c *Config) Merchant(id string) (MerchantConfig, bool) {
	for _, m := range c.Merchants {
		if string(m.ID) == id {
			return m, true
		}
	}
	return MerchantConfig{}, false
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
