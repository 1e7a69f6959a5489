package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TenancyConfig drives host-based tenant resolution
type TenancyConfig struct {
	// RootDomains are the platform's own domains; their subdomains are slugs
	RootDomains []string
	// CustomDomains maps a tenant's own host to its slug
	CustomDomains map[string]string
}

// GetTenancyConfig reads TENANCY_ROOT_DOMAINS (comma separated) and
// TENANCY_CUSTOM_DOMAINS (comma separated host=slug pairs)
func GetTenancyConfig() (*TenancyConfig, error) {
	cfg := &TenancyConfig{
		RootDomains:   splitList(getEnv("TENANCY_ROOT_DOMAINS", "eduvibe.vip,localhost")),
		CustomDomains: make(map[string]string),
	}

	for _, pair := range splitList(os.Getenv("TENANCY_CUSTOM_DOMAINS")) {
		host, slug, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(host) == "" || strings.TrimSpace(slug) == "" {
			return nil, fmt.Errorf("invalid TENANCY_CUSTOM_DOMAINS entry %q, expected host=slug", pair)
		}
		cfg.CustomDomains[strings.TrimSpace(host)] = strings.TrimSpace(slug)
	}

	return cfg, nil
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	SessionTTL time.Duration
}

// GetRedisConfig returns Redis configuration from environment variables
func GetRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:       fmt.Sprintf("%s:%s", getEnv("REDIS_HOST", "localhost"), getEnv("REDIS_PORT", "6379")),
		Password:   os.Getenv("REDIS_PASSWORD"),
		DB:         getEnvInt("REDIS_DB", 0),
		SessionTTL: getEnvDuration("SESSION_TTL", time.Hour),
	}
}

// KafkaConfig holds audit stream settings. An empty Broker disables publishing.
type KafkaConfig struct {
	Broker     string
	AuditTopic string
	Workers    int
	QueueSize  int
}

// GetKafkaConfig returns Kafka configuration from environment variables
func GetKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Broker:     os.Getenv("KAFKA_BROKER"),
		AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "audit-events"),
		Workers:    getEnvInt("KAFKA_AUDIT_WORKERS", 4),
		QueueSize:  getEnvInt("KAFKA_AUDIT_QUEUE_SIZE", 1000),
	}
}

// CognitoConfig identifies the user pool that issues ID tokens
type CognitoConfig struct {
	Region     string
	UserPoolID string
	ClientID   string
}

// JWKSURL returns the pool's public key endpoint
func (c *CognitoConfig) JWKSURL() string {
	if url := os.Getenv("JWKS_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", c.Region, c.UserPoolID)
}

// Issuer returns the iss claim of tokens minted by the pool
func (c *CognitoConfig) Issuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// GetCognitoConfig returns Cognito configuration from environment variables
func GetCognitoConfig() (*CognitoConfig, error) {
	cfg := &CognitoConfig{
		Region:     os.Getenv("AWS_REGION"),
		UserPoolID: os.Getenv("COGNITO_USER_POOL_ID"),
		ClientID:   os.Getenv("COGNITO_CLIENT_ID"),
	}
	if cfg.Region == "" || cfg.UserPoolID == "" {
		return nil, fmt.Errorf("AWS_REGION and COGNITO_USER_POOL_ID must be set")
	}
	return cfg, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnv is getEnv for service main packages
func GetEnv(key, defaultValue string) string {
	return getEnv(key, defaultValue)
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
