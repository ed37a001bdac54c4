// Package config loads service configuration with viper: defaults first,
// optionally a config file, and STOREFRONT_* environment variables on top.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`

	SQLitePath string `mapstructure:"sqlite_path"`
	RedisAddr  string `mapstructure:"redis_addr"`

	CartTTL time.Duration `mapstructure:"cart_ttl"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`

	// AmountTolerance is the slack, in minor currency units, allowed
	// between a claimed or gateway-confirmed amount and the stored order
	// total. Absorbs the gateway's integer-amount rounding.
	AmountTolerance int64 `mapstructure:"amount_tolerance"`

	Webpay Webpay `mapstructure:"webpay"`
}

type Webpay struct {
	BaseURL      string        `mapstructure:"base_url"`
	CommerceCode string        `mapstructure:"commerce_code"`
	APIKey       string        `mapstructure:"api_key"`
	ReturnURL    string        `mapstructure:"return_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Load reads configuration. path may be empty; when set it names a config
// file (yaml) whose values sit between the defaults and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("sqlite_path", "./data/storefront.db")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("cart_ttl", 7*24*time.Hour)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("rate_limit_rps", 5.0)
	v.SetDefault("rate_limit_burst", 10)
	v.SetDefault("amount_tolerance", 1)
	v.SetDefault("webpay.base_url", "https://webpay3gint.transbank.cl")
	v.SetDefault("webpay.commerce_code", "597055555532")
	v.SetDefault("webpay.api_key", "")
	v.SetDefault("webpay.return_url", "http://localhost:3000/checkout/return")
	v.SetDefault("webpay.timeout", 30*time.Second)

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
