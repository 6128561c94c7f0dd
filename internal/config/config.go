package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"shielded-feed/internal/logging"
)

// ErrRPCNotConfigured is reported whenever a node-backed operation runs without rpc.url.
var ErrRPCNotConfigured = errors.New("rpc endpoint not configured")

// ConfigError reports a missing or invalid configuration value. It is fatal and never retried.
type ConfigError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Reason == "" && e.Err != nil {
		return fmt.Sprintf("config %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sampler  SamplerConfig  `mapstructure:"sampler"`
	Ticker   TickerConfig   `mapstructure:"ticker"`
	Supply   SupplyConfig   `mapstructure:"supply"`
	Timeline TimelineConfig `mapstructure:"timeline"`
	Server   ServerConfig   `mapstructure:"server"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// RPCConfig covers access to the origin node.
type RPCConfig struct {
	URL       string        `mapstructure:"url"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
}

// Require returns a ConfigError when no node endpoint is set or the URL cannot be dialled.
func (r RPCConfig) Require() error {
	raw := strings.TrimSpace(r.URL)
	if raw == "" {
		return &ConfigError{Key: "rpc.url", Err: ErrRPCNotConfigured}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ConfigError{Key: "rpc.url", Err: err}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss":
	default:
		return &ConfigError{Key: "rpc.url", Reason: fmt.Sprintf("%q needs an http, https, ws or wss scheme", raw)}
	}
	if u.Host == "" {
		return &ConfigError{Key: "rpc.url", Reason: fmt.Sprintf("%q has no host", raw)}
	}
	return nil
}

// GatewayConfig governs the response cache in front of the node.
type GatewayConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheBackend string        `mapstructure:"cache_backend"`
	SweepSpec    string        `mapstructure:"sweep_spec"`
}

// RedisConfig is used when gateway.cache_backend is redis.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SamplerConfig sets the historical window walked on every pass.
type SamplerConfig struct {
	WindowBlocks int64 `mapstructure:"window_blocks"`
	Stride       int64 `mapstructure:"stride"`
	Workers      int   `mapstructure:"workers"`
}

// TickerConfig captures the spot price feed.
type TickerConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Symbol        string        `mapstructure:"symbol"`
	KlineInterval string        `mapstructure:"kline_interval"`
	KlineLimit    int           `mapstructure:"kline_limit"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// SupplyConfig captures the circulating supply feed.
type SupplyConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	CoinID    string        `mapstructure:"coin_id"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// TimelineConfig governs refresh cadence.
type TimelineConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	CycleTimeout    time.Duration `mapstructure:"cycle_timeout"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZECWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "zecwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// rpc.url has no default; AutomaticEnv only resolves keys viper already knows.
	v.SetDefault("rpc.url", "")
	v.SetDefault("rpc.username", "")
	v.SetDefault("rpc.password", "")
	v.SetDefault("rpc.timeout", "15s")
	v.SetDefault("rpc.rate_limit", 20.0)
	v.SetDefault("rpc.burst", 40)

	v.SetDefault("gateway.cache_ttl", "60s")
	v.SetDefault("gateway.cache_backend", "memory")
	v.SetDefault("gateway.sweep_spec", "@every 1m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "zecwatcher:rpc:")

	v.SetDefault("sampler.window_blocks", int64(576))
	v.SetDefault("sampler.stride", int64(12))
	v.SetDefault("sampler.workers", 4)

	v.SetDefault("ticker.base_url", "https://api.binance.com")
	v.SetDefault("ticker.symbol", "ZECUSDT")
	v.SetDefault("ticker.kline_interval", "2h")
	v.SetDefault("ticker.kline_limit", 12)
	v.SetDefault("ticker.timeout", "10s")

	v.SetDefault("supply.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("supply.coin_id", "zcash")
	v.SetDefault("supply.api_key", "")
	v.SetDefault("supply.timeout", "10s")
	v.SetDefault("supply.user_agent", "zecwatcher/1.0")

	v.SetDefault("timeline.refresh_interval", "15m")
	v.SetDefault("timeline.retry_interval", "5m")
	v.SetDefault("timeline.cycle_timeout", "2m")
	v.SetDefault("timeline.startup_delay", "0s")
	v.SetDefault("timeline.align_to_interval", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "150s")
	v.SetDefault("server.shutdown_timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
// rpc.url is deliberately not checked here; see RPCConfig.Require.
func (c *Config) Validate() error {
	if c.Sampler.WindowBlocks <= 0 {
		return &ConfigError{Key: "sampler.window_blocks", Reason: "must be greater than zero"}
	}
	if c.Sampler.Stride <= 0 {
		return &ConfigError{Key: "sampler.stride", Reason: "must be greater than zero"}
	}
	if c.Sampler.Workers <= 0 {
		return &ConfigError{Key: "sampler.workers", Reason: "must be greater than zero"}
	}
	if c.Gateway.CacheTTL <= 0 {
		return &ConfigError{Key: "gateway.cache_ttl", Reason: "must be greater than zero"}
	}
	switch strings.ToLower(c.Gateway.CacheBackend) {
	case "memory", "redis":
	default:
		return &ConfigError{Key: "gateway.cache_backend", Reason: fmt.Sprintf("unknown backend %q", c.Gateway.CacheBackend)}
	}
	if c.Timeline.RefreshInterval <= 0 {
		return &ConfigError{Key: "timeline.refresh_interval", Reason: "must be greater than zero"}
	}
	if c.Timeline.RetryInterval <= 0 {
		return &ConfigError{Key: "timeline.retry_interval", Reason: "must be greater than zero"}
	}
	if c.Timeline.CycleTimeout <= 0 {
		return &ConfigError{Key: "timeline.cycle_timeout", Reason: "must be greater than zero"}
	}
	if c.RPC.RateLimit < 0 {
		return &ConfigError{Key: "rpc.rate_limit", Reason: "cannot be negative"}
	}
	if strings.TrimSpace(c.Ticker.Symbol) == "" {
		return &ConfigError{Key: "ticker.symbol", Reason: "必须配置"}
	}
	if strings.TrimSpace(c.Supply.CoinID) == "" {
		return &ConfigError{Key: "supply.coin_id", Reason: "必须配置"}
	}
	return nil
}
