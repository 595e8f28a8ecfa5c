package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Desktop notification permission values
const (
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
	PermissionDefault = "default"
)

type Config struct {
	Port       int              `mapstructure:"port"`
	LogLevel   string           `mapstructure:"log_level"`
	LogFormat  string           `mapstructure:"log_format"`
	Env        string           `mapstructure:"env"`
	SLA        SLAConfig        `mapstructure:"sla"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	DataSource DataSourceConfig `mapstructure:"datasource"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
}

// SLAConfig holds the deadline tracking settings
type SLAConfig struct {
	DefaultMinutes  int           `mapstructure:"default_minutes"`
	DisplayInterval time.Duration `mapstructure:"display_interval"`
	BudgetInterval  time.Duration `mapstructure:"budget_interval"`
	ScanInterval    time.Duration `mapstructure:"scan_interval"`
}

// AlertsConfig holds the notification fan-out settings
type AlertsConfig struct {
	SoundEnabled      bool          `mapstructure:"sound_enabled"`
	DesktopPermission string        `mapstructure:"desktop_permission"`
	CollapseWindow    time.Duration `mapstructure:"collapse_window"`
	ChannelTimeout    time.Duration `mapstructure:"channel_timeout"`
	CurrencyCode      string        `mapstructure:"currency_code"`
	CurrencySymbol    string        `mapstructure:"currency_symbol"`
	InboxCapacity     int           `mapstructure:"inbox_capacity"`
}

// DataSourceConfig configures the simulated order API and the client around it
type DataSourceConfig struct {
	MinLatency       time.Duration `mapstructure:"min_latency"`
	MaxLatency       time.Duration `mapstructure:"max_latency"`
	FailureRate      float64       `mapstructure:"failure_rate"`
	NewOrderInterval time.Duration `mapstructure:"new_order_interval"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BreakerThreshold int64         `mapstructure:"breaker_threshold"`
	BreakerReset     time.Duration `mapstructure:"breaker_reset"`
}

// KafkaConfig holds the Kafka configuration
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	EventsTopic   string   `mapstructure:"events_topic"`
	OrdersTopic   string   `mapstructure:"orders_topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

// RateLimitConfig configures the HTTP rate limiter
type RateLimitConfig struct {
	GlobalMaxTokens   float64       `mapstructure:"global_max_tokens"`
	GlobalRefillRate  float64       `mapstructure:"global_refill_rate"`
	IPMaxTokens       float64       `mapstructure:"ip_max_tokens"`
	IPRefillRate      float64       `mapstructure:"ip_refill_rate"`
	IPIdleTTL         time.Duration `mapstructure:"ip_idle_ttl"`
	TrustForwardedFor bool          `mapstructure:"trust_forwarded_for"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("env", "development")

	v.SetDefault("sla.default_minutes", 20)
	v.SetDefault("sla.display_interval", time.Second)
	v.SetDefault("sla.budget_interval", 10*time.Second)
	v.SetDefault("sla.scan_interval", 30*time.Second)

	v.SetDefault("alerts.sound_enabled", true)
	v.SetDefault("alerts.desktop_permission", PermissionDefault)
	v.SetDefault("alerts.collapse_window", 10*time.Minute)
	v.SetDefault("alerts.channel_timeout", 5*time.Second)
	v.SetDefault("alerts.currency_code", "NGN")
	v.SetDefault("alerts.currency_symbol", "₦")
	v.SetDefault("alerts.inbox_capacity", 100)

	v.SetDefault("datasource.min_latency", 400*time.Millisecond)
	v.SetDefault("datasource.max_latency", 600*time.Millisecond)
	v.SetDefault("datasource.failure_rate", 0.0)
	v.SetDefault("datasource.new_order_interval", 2*time.Minute)
	v.SetDefault("datasource.poll_interval", 15*time.Second)
	v.SetDefault("datasource.request_timeout", 5*time.Second)
	v.SetDefault("datasource.max_attempts", 3)
	v.SetDefault("datasource.breaker_threshold", 5)
	v.SetDefault("datasource.breaker_reset", 30*time.Second)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "vendor-order-events")
	v.SetDefault("kafka.orders_topic", "vendor-incoming-orders")
	v.SetDefault("kafka.consumer_group", "vendor-order-desk")

	v.SetDefault("ratelimit.global_max_tokens", 200)
	v.SetDefault("ratelimit.global_refill_rate", 100)
	v.SetDefault("ratelimit.ip_max_tokens", 40)
	v.SetDefault("ratelimit.ip_refill_rate", 20)
	v.SetDefault("ratelimit.ip_idle_ttl", 10*time.Minute)
	v.SetDefault("ratelimit.trust_forwarded_for", false)
}

// Load reads the configuration from .env, an optional config file and the
// environment, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keep the short env names used by deployments.
	_ = v.BindEnv("env", "APP_ENV")
	_ = v.BindEnv("kafka.brokers", "KAFKA_BROKERS")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vendor-order-desk")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// KAFKA_BROKERS arrives as a single comma separated string.
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.SLA.DefaultMinutes <= 0 {
		return fmt.Errorf("sla.default_minutes must be positive, got %d", c.SLA.DefaultMinutes)
	}

	intervals := map[string]time.Duration{
		"sla.display_interval":     c.SLA.DisplayInterval,
		"sla.budget_interval":      c.SLA.BudgetInterval,
		"sla.scan_interval":        c.SLA.ScanInterval,
		"alerts.channel_timeout":   c.Alerts.ChannelTimeout,
		"datasource.poll_interval": c.DataSource.PollInterval,
	}
	for key, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}

	switch c.Alerts.DesktopPermission {
	case PermissionGranted, PermissionDenied, PermissionDefault:
	default:
		return fmt.Errorf("invalid alerts.desktop_permission: %q", c.Alerts.DesktopPermission)
	}

	if c.DataSource.FailureRate < 0 || c.DataSource.FailureRate > 1 {
		return fmt.Errorf("datasource.failure_rate must be within [0,1], got %v", c.DataSource.FailureRate)
	}

	if c.DataSource.MaxLatency < c.DataSource.MinLatency {
		return fmt.Errorf("datasource.max_latency must not be below datasource.min_latency")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}

	return nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
