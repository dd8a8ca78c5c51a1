package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the dispatch service needs.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Dispatch DispatchConfig
}

// EdgeServiceConfig holds everything the edge router needs. The router has no
// database; it only talks to Redis and the resolver endpoint.
type EdgeServiceConfig struct {
	Server ServerConfig
	Redis  RedisConfig
	Edge   EdgeConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RabbitMQConfig is optional: when neither URL nor host is set the ingest
// consumer is disabled and the dispatch loop runs on whatever rows already
// reach the inbox table.
type RabbitMQConfig struct {
	URL           string
	Host          string
	Port          string
	User          string
	Password      string
	VHost         string
	SourceQueue   string
	PrefetchCount int
}

type EdgeConfig struct {
	OriginHost       string
	OriginScheme     string
	ResolverURL      string
	BaseHosts        []string
	PlatformSuffixes []string
	CacheTTL         time.Duration
	UpstreamTimeout  time.Duration
}

type DispatchConfig struct {
	Passes              int
	ProcessLimit        int
	RunLimit            int
	InterPassDelay      time.Duration
	StageBudget         time.Duration
	StageBaseURL        string
	DeliveryTimeout     time.Duration
	MaxResponseBodySize int
	MaxAttempts         int
}

// Load reads the dispatch service configuration from the environment.
// Required variables are accumulated and reported in a single error so a
// misconfigured deployment fails once, at startup, with the full list.
func Load() (*Config, error) {
	var missing []string

	get := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: get("SERVER_PORT"),
			Host: get("SERVER_HOST"),
		},
		Database: DatabaseConfig{
			Host:     get("DB_HOST"),
			Port:     get("DB_PORT"),
			User:     get("DB_USER"),
			Password: get("DB_PASSWORD"),
			DBName:   get("DB_NAME"),
			SSLMode:  get("DB_SSLMODE"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:           os.Getenv("RABBITMQ_URL"),
			Host:          os.Getenv("RABBITMQ_HOST"),
			Port:          os.Getenv("RABBITMQ_PORT"),
			User:          os.Getenv("RABBITMQ_USER"),
			Password:      os.Getenv("RABBITMQ_PASSWORD"),
			VHost:         os.Getenv("RABBITMQ_VHOST"),
			SourceQueue:   getDefault("RABBITMQ_SOURCE_QUEUE", "storefront.events"),
			PrefetchCount: getIntDefault("RABBITMQ_PREFETCH_COUNT", 10),
		},
		Dispatch: DispatchConfig{
			Passes:              getIntDefault("TICK_PASSES", 2),
			ProcessLimit:        getIntDefault("TICK_PROCESS_LIMIT", 50),
			RunLimit:            getIntDefault("TICK_RUN_LIMIT", 50),
			InterPassDelay:      getDurationDefault("TICK_INTER_PASS_DELAY_SECONDS", 25),
			StageBudget:         getDurationDefault("TICK_STAGE_BUDGET_SECONDS", 10),
			StageBaseURL:        os.Getenv("STAGE_BASE_URL"),
			DeliveryTimeout:     getDurationDefault("DELIVERY_TIMEOUT_SECONDS", 10),
			MaxResponseBodySize: getIntDefault("DELIVERY_MAX_RESPONSE_BYTES", 64*1024),
			MaxAttempts:         getIntDefault("DELIVERY_MAX_ATTEMPTS", 8),
		},
	}

	if cfg.Dispatch.StageBaseURL == "" {
		cfg.Dispatch.StageBaseURL = fmt.Sprintf("http://127.0.0.1:%s", cfg.Server.Port)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// LoadEdge reads the edge router configuration. ORIGIN_HOST and
// RESOLVE_DOMAIN_URL are the two bindings the router cannot run without.
func LoadEdge() (*EdgeServiceConfig, error) {
	var missing []string

	get := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	cfg := &EdgeServiceConfig{
		Server: ServerConfig{
			Port: get("SERVER_PORT"),
			Host: get("SERVER_HOST"),
		},
		Redis: RedisConfig{
			Addr:     get("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getIntDefault("REDIS_DB", 0),
		},
		Edge: EdgeConfig{
			OriginHost:       get("ORIGIN_HOST"),
			OriginScheme:     getDefault("ORIGIN_SCHEME", "https"),
			ResolverURL:      get("RESOLVE_DOMAIN_URL"),
			BaseHosts:        splitList(getDefault("EDGE_BASE_HOSTS", "shops.respeiteohomem.com.br,comandocentral.com.br,localhost,127.0.0.1")),
			PlatformSuffixes: splitList(getDefault("EDGE_PLATFORM_SUFFIXES", ".pages.dev,.workers.dev")),
			CacheTTL:         getDurationDefault("TENANT_CACHE_TTL_SECONDS", 300),
			UpstreamTimeout:  getDurationDefault("EDGE_UPSTREAM_TIMEOUT_SECONDS", 30),
		},
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// Enabled reports whether enough RabbitMQ configuration is present to start
// the ingest consumer.
func (c *RabbitMQConfig) Enabled() bool {
	return c.URL != "" || c.Host != ""
}

// ConnectionString returns a DSN string for GORM.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s%s",
		c.User, c.Password, c.Host, c.Port, c.VHost)
}

func getDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getIntDefault(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getDurationDefault(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getIntDefault(key, fallbackSeconds)) * time.Second
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
