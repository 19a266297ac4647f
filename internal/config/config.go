package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	ArtifactCacheTTL   time.Duration
	ArtifactCacheSize  int

	// Spreadsheet
	DataBackend         string
	GoogleSpreadsheetID string
	DemoDataDir         string
	RenderTimeout       time.Duration

	// Layout
	HomeSheetName     string
	BalancesSheetName string
	AccountColumn     string
	BalanceColumn     string
	SelectorRow       int
	SelectorMonthCol  int
	SelectorYearCol   int
	SettleDelay       time.Duration
	LayoutFile        string

	// Balances
	BalancesTTL time.Duration

	// Journal
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Logging
	LogLevel  string
	LogFormat string
}

// Layout is the optional YAML file that overrides where things live in the
// spreadsheet.
type Layout struct {
	HomeSheet     string `yaml:"home_sheet"`
	BalancesSheet string `yaml:"balances_sheet"`
	AccountColumn string `yaml:"account_column"`
	BalanceColumn string `yaml:"balance_column"`
	Selector      struct {
		Row      int `yaml:"row"`
		MonthCol int `yaml:"month_col"`
		YearCol  int `yaml:"year_col"`
	} `yaml:"selector"`
	SettleDelay string `yaml:"settle_delay"`
}

// Load reads .env files (when present) and the environment, then applies the
// layout file named by FINBOT_LAYOUT_FILE.
func Load(envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		ArtifactCacheTTL:   getEnvDuration("ARTIFACT_CACHE_TTL", 5*time.Minute),
		ArtifactCacheSize:  getEnvInt("ARTIFACT_CACHE_SIZE", 64),

		DataBackend:         getEnv("DATA_BACKEND", "memory"),
		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		DemoDataDir:         getEnv("FINBOT_DEMO_DIR", "./data"),
		RenderTimeout:       getEnvDuration("RENDER_TIMEOUT", 30*time.Second),

		HomeSheetName:     getEnv("HOME_SHEET_NAME", "Home"),
		BalancesSheetName: getEnv("BALANCES_SHEET_NAME", "Saldos"),
		AccountColumn:     getEnv("BALANCES_ACCOUNT_COLUMN", "CONTA"),
		BalanceColumn:     getEnv("BALANCES_BALANCE_COLUMN", "SALDO ATUAL (R$)"),
		SelectorRow:       getEnvInt("SELECTOR_ROW", 1),
		SelectorMonthCol:  getEnvInt("SELECTOR_MONTH_COL", 2),
		SelectorYearCol:   getEnvInt("SELECTOR_YEAR_COL", 3),
		SettleDelay:       getEnvDuration("SETTLE_DELAY", 3*time.Second),
		LayoutFile:        getEnv("FINBOT_LAYOUT_FILE", ""),

		BalancesTTL: getEnvDuration("BALANCES_TTL", 24*time.Hour),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finbot.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finbot"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "finbot_events"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if strings.EqualFold(cfg.SQLiteDBPath, "off") {
		cfg.SQLiteDBPath = ""
	}
	if cfg.DataBackend == "memory" && cfg.GoogleSpreadsheetID == "" {
		cfg.GoogleSpreadsheetID = "finbot-demo"
	}

	if cfg.LayoutFile != "" {
		if err := cfg.ApplyLayoutFile(cfg.LayoutFile); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadDotEnv loads the given files, or ".env" when none are given. Missing
// files are not an error.
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyLayoutFile overrides layout settings with the non-empty values found
// in the YAML file at path.
func (c *Config) ApplyLayoutFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read layout file: %w", err)
	}
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return fmt.Errorf("parse layout file %s: %w", path, err)
	}

	setString(&c.HomeSheetName, l.HomeSheet)
	setString(&c.BalancesSheetName, l.BalancesSheet)
	setString(&c.AccountColumn, l.AccountColumn)
	setString(&c.BalanceColumn, l.BalanceColumn)
	setInt(&c.SelectorRow, l.Selector.Row)
	setInt(&c.SelectorMonthCol, l.Selector.MonthCol)
	setInt(&c.SelectorYearCol, l.Selector.YearCol)
	if l.SettleDelay != "" {
		d, err := time.ParseDuration(l.SettleDelay)
		if err != nil {
			return fmt.Errorf("layout file %s: settle_delay: %w", path, err)
		}
		c.SettleDelay = d
	}
	return nil
}

// JournalEnabled reports whether resolutions are persisted. SQLITE_DB_PATH=off
// disables the journal.
func (c *Config) JournalEnabled() bool {
	return c.SQLiteDBPath != ""
}

// EventsEnabled reports whether events are published.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"memory", "sheets"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sheets" && c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
	}

	// Validate layout
	if c.HomeSheetName == "" {
		errors = append(errors, "home sheet name cannot be empty")
	}
	if c.BalancesSheetName == "" {
		errors = append(errors, "balances sheet name cannot be empty")
	}
	if c.SelectorRow < 0 || c.SelectorMonthCol < 0 || c.SelectorYearCol < 0 {
		errors = append(errors, "selector row and columns cannot be negative (use 0 to disable repositioning)")
	}
	if c.SelectorRow > 0 && c.SelectorMonthCol > 0 && c.SelectorMonthCol == c.SelectorYearCol {
		errors = append(errors, fmt.Sprintf("selector month and year columns must differ (both %d)", c.SelectorMonthCol))
	}
	if c.SettleDelay < 0 || c.SettleDelay > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid settle delay %v: must be between 0 and 1 minute", c.SettleDelay))
	}

	// Validate balances cache
	if c.BalancesTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid balances TTL %v: must be at least 1 second", c.BalancesTTL))
	} else if c.BalancesTTL > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid balances TTL %v: must be at most 7 days", c.BalancesTTL))
	}

	// Validate SQLite journal directory if enabled
	if c.SQLiteDBPath != "" {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate HTTP front
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.ArtifactCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid artifact cache size %d: must not be negative", c.ArtifactCacheSize))
	}
	if c.RenderTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid render timeout %v: must be at least 1 second", c.RenderTimeout))
	}

	// Validate logging
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
