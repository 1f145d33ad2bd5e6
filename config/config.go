package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"brokerBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Venue credentials
	UserID   string
	Password string
	AppName  string

	// Venue endpoints
	Host        string
	CommandPort int
	StreamPort  int

	// Connection Settings
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	ReceiveTimeout   time.Duration
	CommandInterval  time.Duration // Minimum spacing between two commands
	PingInterval     time.Duration

	// Account
	AccountCurrency string

	// Strategy
	StrategyID            string
	Symbol                string
	DefaultStopLossPips   float64
	DefaultTakeProfitPips float64
	RiskPercent           float64 // e.g., 1 for 1% of equity

	// Risk monitor
	CircuitBreaker           bool
	ToleratedDrawdownPercent float64
	LossStreak               int

	// Database; empty disables the position journal
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Venue credentials
	cfg.UserID = getEnv("XAPI_USER_ID", "")
	cfg.Password = getEnv("XAPI_PASSWORD", "")
	cfg.AppName = getEnv("XAPI_APP_NAME", "brokerBot")
	if cfg.UserID == "" {
		errs = append(errs, "XAPI_USER_ID must be set")
	}
	if cfg.Password == "" {
		errs = append(errs, "XAPI_PASSWORD must be set")
	}

	// Venue endpoints
	cfg.Host = getEnv("XAPI_HOST", "xapi.xtb.com")
	if cfg.Host == "" {
		errs = append(errs, "XAPI_HOST must be set")
	}
	cfg.CommandPort, err = getEnvAsIntRequired("XAPI_COMMAND_PORT", 5124)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid XAPI_COMMAND_PORT: %v", err))
	} else if !validPort(cfg.CommandPort) {
		errs = append(errs, "XAPI_COMMAND_PORT must be between 1 and 65535")
	}
	cfg.StreamPort, err = getEnvAsIntRequired("XAPI_STREAM_PORT", 5125)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid XAPI_STREAM_PORT: %v", err))
	} else if !validPort(cfg.StreamPort) {
		errs = append(errs, "XAPI_STREAM_PORT must be between 1 and 65535")
	}
	if cfg.CommandPort == cfg.StreamPort {
		errs = append(errs, "XAPI_COMMAND_PORT and XAPI_STREAM_PORT must differ")
	}

	// Connection Settings
	cfg.ConnectTimeout = getEnvAsDuration("CONNECT_TIMEOUT_MS", 5000, time.Millisecond, &errs)
	cfg.HandshakeTimeout = getEnvAsDuration("HANDSHAKE_TIMEOUT_MS", 10000, time.Millisecond, &errs)
	cfg.ReceiveTimeout = getEnvAsDuration("RECEIVE_TIMEOUT_MS", 30000, time.Millisecond, &errs)
	cfg.PingInterval = getEnvAsDuration("PING_INTERVAL_SECONDS", 60, time.Second, &errs)

	intervalMs, err := getEnvAsIntRequired("COMMAND_INTERVAL_MS", 200)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid COMMAND_INTERVAL_MS: %v", err))
	} else if intervalMs < 0 {
		errs = append(errs, "COMMAND_INTERVAL_MS cannot be negative")
	}
	cfg.CommandInterval = time.Duration(intervalMs) * time.Millisecond

	// Account
	cfg.AccountCurrency = strings.ToUpper(getEnv("ACCOUNT_CURRENCY", "EUR"))
	if len(cfg.AccountCurrency) != 3 {
		errs = append(errs, "ACCOUNT_CURRENCY must be a 3-letter currency code")
	}

	// Strategy
	cfg.StrategyID = getEnv("STRATEGY_ID", "")
	if cfg.StrategyID == "" {
		errs = append(errs, "STRATEGY_ID must be set")
	} else if strings.Contains(cfg.StrategyID, "|") {
		errs = append(errs, "STRATEGY_ID cannot contain '|'")
	}
	cfg.Symbol = getEnv("SYMBOL", "EURUSD")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}

	cfg.DefaultStopLossPips, err = getEnvAsFloatRequired("DEFAULT_STOP_LOSS_PIPS", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_STOP_LOSS_PIPS: %v", err))
	} else if cfg.DefaultStopLossPips <= 0 {
		errs = append(errs, "DEFAULT_STOP_LOSS_PIPS must be positive")
	}

	cfg.DefaultTakeProfitPips, err = getEnvAsFloatRequired("DEFAULT_TAKE_PROFIT_PIPS", 40)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_TAKE_PROFIT_PIPS: %v", err))
	} else if cfg.DefaultTakeProfitPips <= 0 {
		errs = append(errs, "DEFAULT_TAKE_PROFIT_PIPS must be positive")
	}

	cfg.RiskPercent, err = getEnvAsFloatRequired("RISK_PERCENT", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_PERCENT: %v", err))
	} else if cfg.RiskPercent <= 0 || cfg.RiskPercent > 100 {
		errs = append(errs, "RISK_PERCENT must be between 0 (exclusive) and 100")
	}

	// Risk monitor
	cfg.CircuitBreaker = getEnvAsBool("CIRCUIT_BREAKER", true)
	cfg.ToleratedDrawdownPercent, err = getEnvAsFloatRequired("TOLERATED_DRAWDOWN_PERCENT", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TOLERATED_DRAWDOWN_PERCENT: %v", err))
	} else if cfg.ToleratedDrawdownPercent <= 0 {
		errs = append(errs, "TOLERATED_DRAWDOWN_PERCENT must be positive")
	}
	cfg.LossStreak, err = getEnvAsIntRequired("LOSS_STREAK", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOSS_STREAK: %v", err))
	} else if cfg.LossStreak < 0 {
		errs = append(errs, "LOSS_STREAK cannot be negative")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsDuration reads a positive integer count of unit.
func getEnvAsDuration(key string, defaultValue int, unit time.Duration, errs *[]string) time.Duration {
	value, err := getEnvAsIntRequired(key, defaultValue)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid %s: %v", key, err))
		return 0
	}
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be positive", key))
		return 0
	}
	return time.Duration(value) * unit
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
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
