package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Shared bearer secret checked by the authority and sent by devices
	AdminSecret string

	// Redis configuration (authority side)
	RedisURL string

	// PubNub configuration (authority-side check-in notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Device agent configuration
	APIBaseURL    string
	StorePath     string
	OperatorName  string
	RemoteTimeout time.Duration

	// Scan pipeline
	DedupWindow     time.Duration
	ProcessingDelay time.Duration

	// Sync configuration
	SyncInterval    time.Duration
	PingInterval    time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		AdminSecret: getEnv("ADMIN_SECRET_KEY", ""),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "checkin-authority"),

		// Device agent
		APIBaseURL:    getEnv("API_BASE_URL", "http://localhost:8090"),
		StorePath:     getEnv("STORE_PATH", "checkin.db"),
		OperatorName:  getEnv("OPERATOR_NAME", ""),
		RemoteTimeout: getEnvAsDuration("REMOTE_TIMEOUT", "10s"),

		// Scan pipeline
		DedupWindow:     getEnvAsDuration("SCAN_DEDUP_WINDOW", "2s"),
		ProcessingDelay: getEnvAsDuration("PROCESS_RELEASE_DELAY", "500ms"),

		// Sync
		SyncInterval:    getEnvAsDuration("SYNC_INTERVAL", "30s"),
		PingInterval:    getEnvAsDuration("PING_INTERVAL", "15s"),
		BreakerFailures: getEnvAsInt("BREAKER_FAILURES", 5),
		BreakerCooldown: getEnvAsDuration("BREAKER_COOLDOWN", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, fall back to the default value.
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
