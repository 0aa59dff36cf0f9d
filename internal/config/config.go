// Package config loads the sale daemon configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/Bidon15/licensesale/internal/events"
	"github.com/Bidon15/licensesale/internal/models"
)

// EnvPrefix prefixes every environment override, e.g.
// LICENSESALE_DATABASE_URL for database.url.
const EnvPrefix = "LICENSESALE"

// Config holds all configuration for the daemon.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Sale      SaleConfig      `mapstructure:"sale"`
	Authz     AuthzConfig     `mapstructure:"authz"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig holds the HTTP listeners.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL settings. An empty URL runs the sale
// in memory only.
type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

// RedisConfig holds Redis settings. An empty Addr disables the event
// stream and keeps rate limiting in process.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// RateLimitConfig holds JSON-RPC rate limits per caller.
type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	Burst             int `mapstructure:"burst"`
}

// AuthConfig holds request signature settings.
type AuthConfig struct {
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew"`
}

// SaleConfig seeds the sale settings on first start. Once state has been
// persisted the stored settings win.
type SaleConfig struct {
	Owner        string `mapstructure:"owner"`
	BaseURI      string `mapstructure:"base_uri"`
	FundReceiver string `mapstructure:"fund_receiver"`
	PaymentToken string `mapstructure:"payment_token"`
	Spender      string `mapstructure:"spender"`
	Transferable bool   `mapstructure:"transferable"`
	Faucet       bool   `mapstructure:"faucet"`
}

// AuthzConfig selects the admin authorizer. An empty PolicyPath uses the
// built-in owner-only policy.
type AuthzConfig struct {
	PolicyPath string `mapstructure:"policy_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig holds tracing settings.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DefaultSpender is the address the sale pulls payment allowances as.
var DefaultSpender = common.HexToAddress("0x0000000000000000000000000000000000005a1e")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8545")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", events.DefaultStream)
	v.SetDefault("redis.max_len", events.DefaultMaxLen)

	v.SetDefault("ratelimit.requests_per_second", 20)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("auth.max_clock_skew", 5*time.Minute)

	v.SetDefault("sale.owner", "")
	v.SetDefault("sale.base_uri", "")
	v.SetDefault("sale.fund_receiver", "")
	v.SetDefault("sale.payment_token", "")
	v.SetDefault("sale.spender", DefaultSpender.Hex())
	v.SetDefault("sale.transferable", false)
	v.SetDefault("sale.faucet", false)

	v.SetDefault("authz.policy_path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
}

// Load reads configuration from path (optional), then the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	addresses := []struct {
		key      string
		value    string
		required bool
	}{
		{"sale.owner", c.Sale.Owner, true},
		{"sale.fund_receiver", c.Sale.FundReceiver, true},
		{"sale.payment_token", c.Sale.PaymentToken, true},
		{"sale.spender", c.Sale.Spender, false},
	}
	for _, a := range addresses {
		switch {
		case a.value == "" && a.required:
			errs = append(errs, fmt.Errorf("%s is required", a.key))
		case a.value != "" && !common.IsHexAddress(a.value):
			errs = append(errs, fmt.Errorf("%s: invalid address %q", a.key, a.value))
		case a.value != "" && a.required && common.HexToAddress(a.value) == (common.Address{}):
			errs = append(errs, fmt.Errorf("%s must not be the zero address", a.key))
		}
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("ratelimit.requests_per_second must not be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Settings returns the initial sale settings.
func (c *Config) Settings() models.Settings {
	return models.Settings{
		Owner:        common.HexToAddress(c.Sale.Owner),
		BaseURI:      c.Sale.BaseURI,
		FundReceiver: common.HexToAddress(c.Sale.FundReceiver),
		PaymentToken: common.HexToAddress(c.Sale.PaymentToken),
		Transferable: c.Sale.Transferable,
	}
}

// Spender returns the allowance spender of the sale.
func (c *Config) Spender() common.Address {
	if c.Sale.Spender == "" {
		return DefaultSpender
	}
	return common.HexToAddress(c.Sale.Spender)
}
