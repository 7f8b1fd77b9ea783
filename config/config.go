package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cryptopulse/internal/alert"

	"github.com/spf13/viper"
)

type Config struct {
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// UpstreamConfig describes the market-data provider.
type UpstreamConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	PricePath         string        `mapstructure:"price_path"`  // "%s" is replaced by the symbol
	SocialPath        string        `mapstructure:"social_path"` // empty disables social fetches
	Key               string        `mapstructure:"api_key"`
	KeyParam          string        `mapstructure:"api_key_param"` // SSM parameter name used in prod
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // "memory" or "redis"
	Version       string        `mapstructure:"version"`
	PriceTTL      time.Duration `mapstructure:"price_ttl"`
	SocialTTL     time.Duration `mapstructure:"social_ttl"`
	Retention     time.Duration `mapstructure:"retention"`
	SocialEnabled bool          `mapstructure:"social_enabled"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EngineConfig struct {
	Symbols         []string       `mapstructure:"symbols"`
	TickInterval    time.Duration  `mapstructure:"tick_interval"`
	FetchTimeout    time.Duration  `mapstructure:"fetch_timeout"`
	HistoryCapacity int            `mapstructure:"history_capacity"`
	DefaultAlerts   []alert.Params `mapstructure:"default_alerts"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("upstream.base_url", "https://lunarcrush.com/api4")
	v.SetDefault("upstream.price_path", "/public/coins/%s/v1")
	v.SetDefault("upstream.social_path", "/public/topic/%s/v1")
	v.SetDefault("upstream.timeout", 10*time.Second)
	v.SetDefault("upstream.requests_per_second", 5.0)
	v.SetDefault("upstream.burst", 5)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.version", "v1")
	v.SetDefault("cache.price_ttl", 30*time.Second)
	v.SetDefault("cache.social_ttl", 5*time.Minute)
	v.SetDefault("cache.retention", 24*time.Hour)
	v.SetDefault("cache.social_enabled", true)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("engine.symbols", []string{"bitcoin", "ethereum"})
	v.SetDefault("engine.tick_interval", 30*time.Second)
	v.SetDefault("engine.fetch_timeout", 8*time.Second)
	v.SetDefault("engine.history_capacity", 200)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.send_buffer", 64)
	v.SetDefault("server.shutdown_grace", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.history_retention", 30*24*time.Hour)
}

// Load loads application configuration using Viper.
// It reads from the given config file (or config.yaml next to the executable when path is empty)
// and overrides with environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")

		ex, _ := os.Executable()
		if strings.Contains(ex, "go-build") {
			pwd, _ := os.Getwd()
			v.AddConfigPath(filepath.Join(pwd, "../../config"))
		} else {
			v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
		}
		v.AddConfigPath(".")
	}

	// Support environment variables with dot notation (e.g., ENGINE_TICK_INTERVAL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Engine.Symbols) == 0 {
		return errors.New("config: engine.symbols must not be empty")
	}
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("config: engine.tick_interval must be positive, got %s", c.Engine.TickInterval)
	}
	if c.Engine.HistoryCapacity < 2 {
		return fmt.Errorf("config: engine.history_capacity must be at least 2, got %d", c.Engine.HistoryCapacity)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown cache.backend %q", c.Cache.Backend)
	}
	return nil
}
