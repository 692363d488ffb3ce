package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	API         APIConfig
	Logger      LoggerConfig
	Memory      MemoryConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Matching    MatchingConfig
	Settlement  SettlementConfig
	AMM         AMMConfig
	MarketMaker MarketMakerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// APIConfig holds request limit configuration
type APIConfig struct {
	DefaultTradeLimit int
	MaxTradeLimit     int
	OrderBookDepth    int
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level  string // debug, info, warn, error
	Format string // console or json
}

// MemoryConfig holds in-memory storage configuration
type MemoryConfig struct {
	MaxTrades int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	MaxConns        int
	ConnMaxLifetime time.Duration
	SSLMode         string
}

// RedisConfig holds Redis trade cache configuration
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	MaxTrades int
	TradeTTL  time.Duration
}

// MatchingConfig holds matching engine configuration
type MatchingConfig struct {
	MaxIterations int
	// FallbackPrice prices market-to-market matches on pairs without trade
	// history. Empty means such matches are rejected.
	FallbackPrice decimal.Decimal
	MakerFeeBps   int64
	TakerFeeBps   int64
}

// SettlementConfig holds settlement saga configuration
type SettlementConfig struct {
	// SlippageBuffer is the extra fraction reserved when locking funds for
	// market buys
	SlippageBuffer decimal.Decimal
}

// AMMConfig holds liquidity pool configuration
type AMMConfig struct {
	RatioTolerance decimal.Decimal
}

// MarketMakerConfig holds quoting loop configuration
type MarketMakerConfig struct {
	Enabled            bool
	Interval           time.Duration
	BaseSpreadBps      int
	Levels             int
	OrderSizeFraction  decimal.Decimal
	TargetBaseRatio    decimal.Decimal
	InventoryTolerance decimal.Decimal
	VolatilityWindow   int
}

var instance *Config

// Load loads configuration from .env file (if exists) and environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		API: APIConfig{
			DefaultTradeLimit: getEnvInt("DEFAULT_TRADE_LIMIT", 100),
			MaxTradeLimit:     getEnvInt("MAX_TRADE_LIMIT", 1000),
			OrderBookDepth:    getEnvInt("ORDERBOOK_DEPTH", 10),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Memory: MemoryConfig{
			MaxTrades: getEnvInt("MEMORY_MAX_TRADES", 10000),
		},
		Database: DatabaseConfig{
			Enabled:         getEnvBool("DATABASE_ENABLED", false),
			Host:            getEnv("DATABASE_HOST", "localhost"),
			Port:            getEnvInt("DATABASE_PORT", 5432),
			Name:            getEnv("DATABASE_NAME", "exchange_core"),
			User:            getEnv("DATABASE_USER", "postgres"),
			Password:        getEnv("DATABASE_PASSWORD", ""),
			MaxConns:        getEnvInt("DATABASE_MAX_CONNECTIONS", 20),
			ConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			SSLMode:         getEnv("DATABASE_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:   getEnvBool("REDIS_ENABLED", false),
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnvInt("REDIS_PORT", 6379),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			MaxTrades: getEnvInt("REDIS_MAX_TRADES", 10000),
			TradeTTL:  getEnvDuration("REDIS_TRADE_TTL", 24*time.Hour),
		},
		Matching: MatchingConfig{
			MaxIterations: getEnvInt("MATCHING_MAX_ITERATIONS", 100),
			FallbackPrice: getEnvDecimal("MATCHING_FALLBACK_PRICE", decimal.Zero),
			MakerFeeBps:   int64(getEnvInt("MAKER_FEE_BPS", 10)),
			TakerFeeBps:   int64(getEnvInt("TAKER_FEE_BPS", 20)),
		},
		Settlement: SettlementConfig{
			SlippageBuffer: getEnvDecimal("SETTLEMENT_SLIPPAGE_BUFFER", decimal.NewFromFloat(0.10)),
		},
		AMM: AMMConfig{
			RatioTolerance: getEnvDecimal("AMM_RATIO_TOLERANCE", decimal.NewFromFloat(0.01)),
		},
		MarketMaker: MarketMakerConfig{
			Enabled:            getEnvBool("MARKET_MAKER_ENABLED", false),
			Interval:           getEnvDuration("MARKET_MAKER_INTERVAL", 10*time.Second),
			BaseSpreadBps:      getEnvInt("MARKET_MAKER_SPREAD_BPS", 30),
			Levels:             getEnvInt("MARKET_MAKER_LEVELS", 3),
			OrderSizeFraction:  getEnvDecimal("MARKET_MAKER_ORDER_SIZE_FRACTION", decimal.NewFromFloat(0.01)),
			TargetBaseRatio:    getEnvDecimal("MARKET_MAKER_TARGET_BASE_RATIO", decimal.NewFromFloat(0.5)),
			InventoryTolerance: getEnvDecimal("MARKET_MAKER_INVENTORY_TOLERANCE", decimal.NewFromFloat(0.05)),
			VolatilityWindow:   getEnvInt("MARKET_MAKER_VOLATILITY_WINDOW", 32),
		},
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	instance = cfg
	return cfg, nil
}

// Get returns the singleton config instance
func Get() *Config {
	if instance == nil {
		panic("config not loaded - call config.Load() first")
	}
	return instance
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	if c.API.DefaultTradeLimit < 1 {
		return fmt.Errorf("DEFAULT_TRADE_LIMIT must be > 0")
	}
	if c.API.MaxTradeLimit < c.API.DefaultTradeLimit {
		return fmt.Errorf("MAX_TRADE_LIMIT must be >= DEFAULT_TRADE_LIMIT")
	}
	if c.API.OrderBookDepth < 1 {
		return fmt.Errorf("ORDERBOOK_DEPTH must be > 0")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logger.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	if c.Logger.Format != "console" && c.Logger.Format != "json" {
		return fmt.Errorf("LOG_FORMAT must be console or json")
	}

	if c.Matching.MaxIterations < 1 {
		return fmt.Errorf("MATCHING_MAX_ITERATIONS must be > 0")
	}
	if c.Matching.FallbackPrice.IsNegative() {
		return fmt.Errorf("MATCHING_FALLBACK_PRICE must be >= 0")
	}
	if c.Settlement.SlippageBuffer.IsNegative() {
		return fmt.Errorf("SETTLEMENT_SLIPPAGE_BUFFER must be >= 0")
	}
	if !c.AMM.RatioTolerance.IsPositive() {
		return fmt.Errorf("AMM_RATIO_TOLERANCE must be > 0")
	}

	if c.MarketMaker.Enabled {
		if c.MarketMaker.Interval < time.Second {
			return fmt.Errorf("MARKET_MAKER_INTERVAL must be >= 1s")
		}
		if c.MarketMaker.Levels < 1 {
			return fmt.Errorf("MARKET_MAKER_LEVELS must be > 0")
		}
	}

	return nil
}

// Helper functions to read environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
