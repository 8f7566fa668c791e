package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var envReplacer = strings.NewReplacer(".", "_")

// Config holds all configuration for the service
type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	Redis       RedisConfig
	MarketData  MarketDataConfig
	FX          FXConfig
	Cache       CacheConfig
	Maintenance MaintenanceConfig
	Logging     LoggingConfig
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StorageConfig selects and parameterizes the storage variant
type StorageConfig struct {
	Mode string `validate:"oneof=embedded hosted"`
	// Embedded variant
	Path string
	// Hosted variant
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds the hosted variant's connection string.
func (s StorageConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		s.Host, s.Port, s.User, s.Password, s.DBName, s.SSLMode,
	)
}

// RedisConfig holds the distributed cache tier configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// MarketDataConfig holds the upstream market-data provider configuration
type MarketDataConfig struct {
	BaseURL         string `validate:"required"`
	APIKey          string
	ApproximateOHLC bool
}

// FXConfig holds the FX subsystem configuration
type FXConfig struct {
	Enabled      bool
	PairBaseURL  string
	PairAPIKey   string
	OpenBaseURL  string
	KeyedBaseURL string
	KeyedAPIKey  string
	RateTTL      time.Duration
}

// CacheConfig holds the cache tier manager configuration
type CacheConfig struct {
	MaxEntries  int `validate:"gte=0"`
	AnalysisTTL time.Duration
}

// MaintenanceConfig holds the background loop configuration
type MaintenanceConfig struct {
	Interval time.Duration
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads the configuration from file and environment variables.
// A missing config file is fine; defaults plus environment apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Environment variables override: STORAGE_MODE, MARKETDATA_APIKEY, ...
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "10s")
	v.SetDefault("server.idleTimeout", "120s")

	// Storage defaults
	v.SetDefault("storage.mode", "embedded")
	v.SetDefault("storage.path", "data/market-cache.db")
	v.SetDefault("storage.host", "localhost")
	v.SetDefault("storage.port", "5432")
	v.SetDefault("storage.user", "marketcache")
	v.SetDefault("storage.password", "")
	v.SetDefault("storage.dbname", "marketcache")
	v.SetDefault("storage.sslmode", "disable")
	v.SetDefault("storage.maxOpenConns", 25)
	v.SetDefault("storage.maxIdleConns", 5)
	v.SetDefault("storage.connMaxLifetime", "30m")

	// Redis tier defaults (off unless configured)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "marketcache")

	// Market-data provider defaults
	v.SetDefault("marketdata.baseURL", "https://api.marketdata.example.com/v1")
	v.SetDefault("marketdata.apikey", "")
	v.SetDefault("marketdata.approximateOHLC", false)

	// FX defaults
	v.SetDefault("fx.enabled", true)
	v.SetDefault("fx.pairBaseURL", "https://v6.exchangerate-api.example.com/v6")
	v.SetDefault("fx.pairAPIKey", "")
	v.SetDefault("fx.openBaseURL", "https://open.er-api.example.com/v6")
	v.SetDefault("fx.keyedBaseURL", "https://data.fixer.example.com/api")
	v.SetDefault("fx.keyedAPIKey", "")
	v.SetDefault("fx.rateTTL", "1h")

	// Cache defaults
	v.SetDefault("cache.maxEntries", 10000)
	v.SetDefault("cache.analysisTTL", "1h")

	// Maintenance defaults
	v.SetDefault("maintenance.interval", "1h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
