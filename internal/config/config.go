// Package config defines all configuration for the exchange server.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via RINDEX_* environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure. All monetary fields are decimals; YAML carries them as strings
// or numbers and the decode hook parses them exactly.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Instrument  InstrumentConfig  `mapstructure:"instrument"`
	Liquidation LiquidationConfig `mapstructure:"liquidation"`
	Trading     TradingConfig     `mapstructure:"trading"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig points at the SQLite file backing the kernel.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// InstrumentConfig parameterises the single R.index instrument.
//
//   - StartingPrice: mark price before the first trade ever happens.
//   - TickSize: price granularity (informational; the book does not round).
//   - MinOrderSize: orders below this are rejected.
//   - MaxLeverage: upper bound for order leverage.
type InstrumentConfig struct {
	StartingPrice decimal.Decimal `mapstructure:"starting_price"`
	TickSize      decimal.Decimal `mapstructure:"tick_size"`
	MinOrderSize  decimal.Decimal `mapstructure:"min_order_size"`
	MaxLeverage   int             `mapstructure:"max_leverage"`
}

// LiquidationConfig tunes the liquidation monitor.
type LiquidationConfig struct {
	CheckInterval        time.Duration      `mapstructure:"check_interval"`
	InsuranceFundInitial decimal.Decimal    `mapstructure:"insurance_fund_initial"`
	MaintenanceMargins   MaintenanceMargins `mapstructure:"maintenance_margins"`
}

// MaintenanceMargins holds the margin fraction per leverage tier.
type MaintenanceMargins struct {
	Conservative decimal.Decimal `mapstructure:"conservative"` // 1-10x
	Moderate     decimal.Decimal `mapstructure:"moderate"`     // 11-50x
	Aggressive   decimal.Decimal `mapstructure:"aggressive"`   // 51-100x
	Degen        decimal.Decimal `mapstructure:"degen"`        // 101x+
}

// ForLeverage returns the maintenance margin for a given leverage.
func (m MaintenanceMargins) ForLeverage(leverage int) decimal.Decimal {
	switch {
	case leverage <= 10:
		return m.Conservative
	case leverage <= 50:
		return m.Moderate
	case leverage <= 100:
		return m.Aggressive
	default:
		return m.Degen
	}
}

// TradingConfig holds participant defaults.
type TradingConfig struct {
	StartingBalance decimal.Decimal `mapstructure:"starting_balance"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// decimalHook decodes YAML strings and numbers into decimal.Decimal without
// ever routing through a binary float.
func decimalHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(decimal.Decimal{}) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(v)
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case float64:
			// YAML numbers with a fractional part arrive as float64; convert
			// through the string form to keep the written digits.
			return decimal.NewFromString(strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.10f", v), "0"), "."))
		default:
			return data, nil
		}
	}
}

// Load reads config from a YAML file with env var overrides.
// Secrets use env vars with the RINDEX_ prefix (e.g. RINDEX_DATABASE_PATH).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		decimalHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if p := os.Getenv("RINDEX_DATABASE_PATH"); p != "" {
		cfg.Database.Path = p
	}

	return &cfg, nil
}

// LoadOrDefault loads config from path, falling back to Default on error.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns a development configuration matching the shipped YAML.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "data/rindex.db",
		},
		Instrument: InstrumentConfig{
			StartingPrice: decimal.NewFromInt(1000),
			TickSize:      decimal.RequireFromString("0.01"),
			MinOrderSize:  decimal.RequireFromString("0.001"),
			MaxLeverage:   150,
		},
		Liquidation: LiquidationConfig{
			CheckInterval:        100 * time.Millisecond,
			InsuranceFundInitial: decimal.NewFromInt(1000000),
			MaintenanceMargins: MaintenanceMargins{
				Conservative: decimal.RequireFromString("0.005"),
				Moderate:     decimal.RequireFromString("0.01"),
				Aggressive:   decimal.RequireFromString("0.02"),
				Degen:        decimal.RequireFromString("0.05"),
			},
		},
		Trading: TradingConfig{
			StartingBalance: decimal.NewFromInt(10000),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Instrument.MaxLeverage < 1 {
		return fmt.Errorf("instrument.max_leverage must be >= 1")
	}
	if !c.Instrument.StartingPrice.IsPositive() {
		return fmt.Errorf("instrument.starting_price must be positive")
	}
	if !c.Instrument.MinOrderSize.IsPositive() {
		return fmt.Errorf("instrument.min_order_size must be positive")
	}
	if c.Liquidation.CheckInterval <= 0 {
		return fmt.Errorf("liquidation.check_interval must be positive")
	}
	if c.Liquidation.InsuranceFundInitial.IsNegative() {
		return fmt.Errorf("liquidation.insurance_fund_initial must not be negative")
	}
	for _, m := range []decimal.Decimal{
		c.Liquidation.MaintenanceMargins.Conservative,
		c.Liquidation.MaintenanceMargins.Moderate,
		c.Liquidation.MaintenanceMargins.Aggressive,
		c.Liquidation.MaintenanceMargins.Degen,
	} {
		if m.IsNegative() || m.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("liquidation.maintenance_margins must be in [0, 1)")
		}
	}
	if c.Trading.StartingBalance.IsNegative() {
		return fmt.Errorf("trading.starting_balance must not be negative")
	}
	return nil
}
