package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SNAP"

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Delivery modes
const (
	FanoutInline   = "inline"
	FanoutAsync    = "async"
	FanoutNATS     = "nats"
	TrendingInline = "inline"
	TrendingKafka  = "kafka"
	FollowStore    = "store"
	FollowHTTP     = "http"
)

// Config holds all configuration for the application
type Config struct {
	Store      StoreConfig
	Redis      RedisConfig
	Server     ServerConfig
	Feed       FeedConfig
	Trending   TrendingConfig
	Broker     BrokerConfig
	Follow     FollowConfig
	Pagination PaginationConfig
	Logging    LoggingConfig
	Telemetry  TelemetryConfig
}

// StoreConfig selects and bounds the persistence backend
type StoreConfig struct {
	Backend          string
	URL              string
	Database         string
	OperationTimeout time.Duration
	ConnectTimeout   time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL         string
	Enabled     bool
	TrendingTTL time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	DebugErrors bool
}

// FeedConfig holds fan-out configuration
type FeedConfig struct {
	MaxFeed                int
	CopyPrivateOnSubscribe bool
	FanoutMode             string
	AsyncWorkers           int
	QueueSize              int
	FanoutConcurrency      int
	JobTimeout             time.Duration
}

// TrendingConfig holds trending topic configuration
type TrendingConfig struct {
	Window        time.Duration
	Mode          string
	SweepInterval time.Duration
}

// BrokerConfig holds NATS and Kafka endpoints
type BrokerConfig struct {
	NATSURL      string
	NATSSubject  string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
}

// FollowConfig selects the follow-relationship oracle
type FollowConfig struct {
	Mode    string
	URL     string
	Timeout time.Duration
}

// PaginationConfig bounds caller supplied page sizes
type PaginationConfig struct {
	MaxLimit int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled           bool
	JaegerURL         string
	PrometheusEnabled bool
	PrometheusPort    int
	ServiceName       string
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.snapfeed")
	viper.AddConfigPath("/etc/snapfeed")

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found; this is OK if we have env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Store: StoreConfig{
			Backend:          getString("store_backend", BackendMemory),
			URL:              getString("store_url", ""),
			Database:         getString("store_database", "snapfeed"),
			OperationTimeout: getDuration("store_operation_timeout", 5*time.Second),
			ConnectTimeout:   getDuration("store_connect_timeout", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:         getString("redis_url", ""),
			Enabled:     getString("redis_url", "") != "",
			TrendingTTL: getDuration("redis_trending_ttl", 30*time.Second),
		},
		Server: ServerConfig{
			Port:        getInt("http_server_port", 8080),
			Host:        getString("http_server_host", "0.0.0.0"),
			DebugErrors: getBool("debug_errors", false),
		},
		Feed: FeedConfig{
			MaxFeed:                getInt("max_feed", 250),
			CopyPrivateOnSubscribe: getBool("copy_private_on_subscribe", true),
			FanoutMode:             getString("fanout_mode", FanoutInline),
			AsyncWorkers:           getInt("fanout_async_workers", 8),
			QueueSize:              getInt("fanout_queue_size", 1024),
			FanoutConcurrency:      getInt("fanout_concurrency", 16),
			JobTimeout:             getDuration("fanout_job_timeout", 30*time.Second),
		},
		Trending: TrendingConfig{
			Window:        getDuration("trending_window", 24*time.Hour),
			Mode:          getString("trending_mode", TrendingInline),
			SweepInterval: getDuration("trending_sweep_interval", 10*time.Minute),
		},
		Broker: BrokerConfig{
			NATSURL:      getString("nats_url", "nats://localhost:4222"),
			NATSSubject:  getString("nats_subject", "snapfeed.post.created"),
			KafkaBrokers: getStrings("kafka_brokers", []string{"localhost:9092"}),
			KafkaTopic:   getString("kafka_topic", "snapfeed.mentions"),
			KafkaGroup:   getString("kafka_group", "snapfeed-trending"),
		},
		Follow: FollowConfig{
			Mode:    getString("follow_mode", FollowStore),
			URL:     getString("follow_url", ""),
			Timeout: getDuration("follow_timeout", 2*time.Second),
		},
		Pagination: PaginationConfig{
			MaxLimit: getInt("max_limit", 100),
		},
		Logging: LoggingConfig{
			Level:  getString("log_level", "INFO"),
			Format: getString("log_format", "json"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           getBool("telemetry_enabled", true),
			JaegerURL:         getString("jaeger_url", "http://localhost:14268/api/traces"),
			PrometheusEnabled: getBool("prometheus_enabled", true),
			PrometheusPort:    getInt("prometheus_port", 9090),
			ServiceName:       getString("service_name", "snapfeed"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("store_backend", BackendMemory)
	viper.SetDefault("store_database", "snapfeed")
	viper.SetDefault("http_server_port", 8080)
	viper.SetDefault("http_server_host", "0.0.0.0")
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("max_feed", 250)
	viper.SetDefault("copy_private_on_subscribe", true)
	viper.SetDefault("fanout_mode", FanoutInline)
	viper.SetDefault("trending_mode", TrendingInline)
	viper.SetDefault("follow_mode", FollowStore)
	viper.SetDefault("max_limit", 100)
	viper.SetDefault("telemetry_enabled", true)
	viper.SetDefault("prometheus_enabled", true)
	viper.SetDefault("prometheus_port", 9090)
	viper.SetDefault("service_name", "snapfeed")
}

func getString(key, defaultValue string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	// Also check environment variable directly
	if val := os.Getenv(envKey(key)); val != "" {
		return val
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	if val := os.Getenv(envKey(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	if val := os.Getenv(envKey(key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	if val := os.Getenv(envKey(key)); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}

// getStrings reads a comma separated list
func getStrings(key string, defaultValue []string) []string {
	raw := getString(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func envKey(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres, BackendMongo:
		if c.Store.URL == "" {
			return fmt.Errorf("store_url is required for the %s backend", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store_backend %q", c.Store.Backend)
	}
	if c.Store.OperationTimeout <= 0 || c.Store.ConnectTimeout <= 0 {
		return fmt.Errorf("store timeouts must be positive")
	}
	if c.Feed.MaxFeed <= 0 {
		return fmt.Errorf("max_feed must be positive")
	}
	switch c.Feed.FanoutMode {
	case FanoutInline, FanoutNATS:
	case FanoutAsync:
		if c.Feed.AsyncWorkers <= 0 || c.Feed.AsyncWorkers > 256 {
			return fmt.Errorf("fanout_async_workers must be between 1 and 256")
		}
	default:
		return fmt.Errorf("unknown fanout_mode %q", c.Feed.FanoutMode)
	}
	if c.Feed.JobTimeout <= 0 {
		return fmt.Errorf("fanout_job_timeout must be positive")
	}
	if c.Trending.Window <= 0 {
		return fmt.Errorf("trending_window must be positive")
	}
	if c.Trending.Mode != TrendingInline && c.Trending.Mode != TrendingKafka {
		return fmt.Errorf("unknown trending_mode %q", c.Trending.Mode)
	}
	switch c.Follow.Mode {
	case FollowStore:
	case FollowHTTP:
		if c.Follow.URL == "" {
			return fmt.Errorf("follow_url is required for the http oracle")
		}
		if c.Follow.Timeout <= 0 {
			return fmt.Errorf("follow_timeout must be positive")
		}
	default:
		return fmt.Errorf("unknown follow_mode %q", c.Follow.Mode)
	}
	if c.Pagination.MaxLimit < 1 || c.Pagination.MaxLimit > 1000 {
		return fmt.Errorf("max_limit must be between 1 and 1000")
	}
	return nil
}
