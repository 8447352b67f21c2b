package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig       `mapstructure:"server"`
	Auth        AuthConfig         `mapstructure:"auth"`
	Market      MarketConfig       `mapstructure:"market"`
	Tap         TapConfig          `mapstructure:"tap"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Redis       RedisConfig        `mapstructure:"redis"`
	Events      EventsConfig       `mapstructure:"events"`
	RateLimit   RateLimitConfig    `mapstructure:"rate_limit"`
	Collaterals []CollateralConfig `mapstructure:"collaterals"`
	Taps        []TappedConfig     `mapstructure:"taps"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type AuthConfig struct {
	RequireAPIKey bool   `mapstructure:"require_api_key"`
	APIKey        string `mapstructure:"api_key"`
	AdminKey      string `mapstructure:"admin_key"`
}

type MarketConfig struct {
	BatchWindowSeconds int64  `mapstructure:"batch_window_seconds"`
	BuyFeePct          string `mapstructure:"buy_fee_pct"`
	SellFeePct         string `mapstructure:"sell_fee_pct"`
	Beneficiary        string `mapstructure:"beneficiary"`
}

type TapConfig struct {
	CooldownSeconds     int64  `mapstructure:"cooldown_seconds"`
	MaxRateIncreasePct  string `mapstructure:"max_rate_increase_pct"`
	MaxFloorDecreasePct string `mapstructure:"max_floor_decrease_pct"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	EventListKey string `mapstructure:"event_list_key"`
	EventListMax int    `mapstructure:"event_list_max"`
}

type EventsConfig struct {
	LogDir string `mapstructure:"log_dir"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CollateralConfig whitelists a collateral at startup.
type CollateralConfig struct {
	Token           string `mapstructure:"token"`
	VirtualSupply   string `mapstructure:"virtual_supply"`
	VirtualBalance  string `mapstructure:"virtual_balance"`
	ReserveRatioPPM uint32 `mapstructure:"reserve_ratio_ppm"`
	Slippage        string `mapstructure:"slippage"`
}

// TappedConfig opens a tap at startup.
type TappedConfig struct {
	Token string `mapstructure:"token"`
	Rate  string `mapstructure:"rate"`
	Floor string `mapstructure:"floor"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. CURVEGATE_MARKET_BATCH_WINDOW_SECONDS
	viper.SetEnvPrefix("curvegate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("auth.require_api_key", false)
	viper.SetDefault("auth.admin_key", "")
	viper.SetDefault("market.batch_window_seconds", 3600)
	viper.SetDefault("market.buy_fee_pct", "0")
	viper.SetDefault("market.sell_fee_pct", "0")
	viper.SetDefault("tap.cooldown_seconds", 2592000) // 30 days
	viper.SetDefault("tap.max_rate_increase_pct", "0.5")
	viper.SetDefault("tap.max_floor_decrease_pct", "0.2")
	viper.SetDefault("redis.event_list_key", "market_events")
	viper.SetDefault("redis.event_list_max", 10000)
	viper.SetDefault("events.log_dir", "./logs")
	viper.SetDefault("rate_limit.requests_per_second", 50)
	viper.SetDefault("rate_limit.burst", 100)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
