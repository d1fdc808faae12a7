package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"shopify-auth-gateway/internal/domain"
)

// WebhookRoute maps a webhook topic to the handler that should process it
// and the queue it is dispatched on.
type WebhookRoute struct {
	Handler string
	Queue   string
}

// Config is the environment surface of the gateway.
type Config struct {
	APIKey     string
	APISecret  string
	APIVersion string

	// TokenExchangeMode selects online or offline tokens for the initial
	// exchange.
	TokenExchangeMode string

	// ProxyTimestampTolerance is the freshness window for app-proxy
	// timestamps, applied symmetrically to past and future skew.
	ProxyTimestampTolerance time.Duration

	DefaultWebhookQueue string
	WebhookRoutes       map[string]WebhookRoute
	WebhookTopics       []string

	// RetentionDays controls how long tombstoned shops are kept before the
	// retention sweep purges them.
	RetentionDays int

	LogTokenLifecycle bool

	EncryptionKey string

	MongoURI      string
	MongoDatabase string
	RedisAddr     string

	AppURL string
	Port   string
}

// Load reads configuration from the environment. godotenv is expected to
// have been loaded by the caller already.
func Load() (*Config, error) {
	cfg := &Config{
		APIKey:                  os.Getenv("SHOPIFY_API_KEY"),
		APISecret:               os.Getenv("SHOPIFY_API_SECRET"),
		APIVersion:              getEnv("SHOPIFY_API_VERSION", "2025-01"),
		TokenExchangeMode:       getEnv("SHOPIFY_TOKEN_EXCHANGE_MODE", domain.AccessModeOffline),
		ProxyTimestampTolerance: getDurationSeconds("SHOPIFY_PROXY_TIMESTAMP_TOLERANCE", 90),
		DefaultWebhookQueue:     getEnv("SHOPIFY_WEBHOOK_QUEUE", "webhooks"),
		RetentionDays:           getInt("SHOPIFY_RETENTION_DAYS", 90),
		LogTokenLifecycle:       getBool("SHOPIFY_LOG_TOKEN_LIFECYCLE", true),
		EncryptionKey:           os.Getenv("ENCRYPTION_KEY"),
		MongoURI:                getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:           getEnv("MONGODB_DATABASE", "shopify_gateway"),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		AppURL:                  getEnv("APP_URL", "http://localhost:8080"),
		Port:                    getEnv("PORT", "8080"),
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("SHOPIFY_API_KEY is required")
	}
	if cfg.APISecret == "" {
		return nil, fmt.Errorf("SHOPIFY_API_SECRET is required")
	}
	if cfg.TokenExchangeMode != domain.AccessModeOnline && cfg.TokenExchangeMode != domain.AccessModeOffline {
		return nil, fmt.Errorf("SHOPIFY_TOKEN_EXCHANGE_MODE must be %q or %q", domain.AccessModeOnline, domain.AccessModeOffline)
	}

	cfg.WebhookRoutes = DefaultWebhookRoutes(cfg.DefaultWebhookQueue)
	for topic := range cfg.WebhookRoutes {
		cfg.WebhookTopics = append(cfg.WebhookTopics, topic)
	}

	return cfg, nil
}

// DefaultWebhookRoutes returns the built-in topic routing table. The GDPR
// topics ride a dedicated queue for compliance priority.
func DefaultWebhookRoutes(defaultQueue string) map[string]WebhookRoute {
	return map[string]WebhookRoute{
		domain.WebhookTopicAppUninstalled:       {Handler: "app-uninstalled", Queue: defaultQueue},
		domain.WebhookTopicCustomersDataRequest: {Handler: "customers-data-request", Queue: "gdpr"},
		domain.WebhookTopicCustomersRedact:      {Handler: "customers-redact", Queue: "gdpr"},
		domain.WebhookTopicShopRedact:           {Handler: "shop-redact", Queue: "gdpr"},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDurationSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getInt(key, fallbackSeconds)) * time.Second
}
