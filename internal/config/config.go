package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values
type Config struct {
	// Server configuration
	Port        int    `json:"port"`
	Environment string `json:"environment"`

	// MongoDB configuration
	MongoURI      string `json:"mongo_uri"`
	MongoDatabase string `json:"mongo_database"`

	// Redis configuration
	RedisURI      string `json:"redis_uri"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// Collection names
	AccountCollection      string `json:"mongo_account_collection"`
	VerificationCollection string `json:"mongo_verification_collection"`
	RentalCollection       string `json:"mongo_rental_collection"`
	TransactionCollection  string `json:"mongo_transaction_collection"`
	BreakerCollection      string `json:"mongo_breaker_collection"`

	// Provider configuration
	ProviderBaseURL     string        `json:"provider_base_url"`
	ProviderAPIKey      string        `json:"-"`
	ProviderCallTimeout time.Duration `json:"provider_call_timeout"`
	ProviderMaxAttempts int           `json:"provider_max_attempts"`
	ProviderBaseDelay   time.Duration `json:"provider_base_delay"`
	ProviderMaxDelay    time.Duration `json:"provider_max_delay"`

	// Circuit breaker configuration
	BreakerFailureThreshold int           `json:"breaker_failure_threshold"`
	BreakerSuccessThreshold int           `json:"breaker_success_threshold"`
	BreakerCooldown         time.Duration `json:"breaker_cooldown"`

	// Lifecycle configuration
	VerificationTTL    time.Duration `json:"verification_ttl"`
	SweepInterval      time.Duration `json:"sweep_interval"`
	ExpiryWarnWindow   time.Duration `json:"expiry_warn_window"`
	BulkRentalMinCount int           `json:"bulk_rental_min_count"`

	// Tracing configuration
	TracingEnabled  bool   `json:"tracing_enabled"`
	TracingEndpoint string `json:"tracing_endpoint"`
}

var (
	AppConfig *Config
)

// LoadConfig loads configuration from environment variables
func LoadConfig() error {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	providerBaseURL := os.Getenv("PROVIDER_BASE_URL")
	if providerBaseURL == "" {
		return fmt.Errorf("PROVIDER_BASE_URL environment variable is required")
	}
	providerAPIKey := os.Getenv("PROVIDER_API_KEY")
	if providerAPIKey == "" {
		return fmt.Errorf("PROVIDER_API_KEY environment variable is required")
	}

	callTimeout, err := time.ParseDuration(getEnvOrDefault("PROVIDER_CALL_TIMEOUT", "30s"))
	if err != nil {
		return fmt.Errorf("invalid PROVIDER_CALL_TIMEOUT: %w", err)
	}
	maxAttempts, err := strconv.Atoi(getEnvOrDefault("PROVIDER_MAX_ATTEMPTS", "3"))
	if err != nil {
		return fmt.Errorf("invalid PROVIDER_MAX_ATTEMPTS: %w", err)
	}
	baseDelay, err := time.ParseDuration(getEnvOrDefault("PROVIDER_BASE_DELAY", "250ms"))
	if err != nil {
		return fmt.Errorf("invalid PROVIDER_BASE_DELAY: %w", err)
	}
	maxDelay, err := time.ParseDuration(getEnvOrDefault("PROVIDER_MAX_DELAY", "5s"))
	if err != nil {
		return fmt.Errorf("invalid PROVIDER_MAX_DELAY: %w", err)
	}

	failureThreshold, err := strconv.Atoi(getEnvOrDefault("BREAKER_FAILURE_THRESHOLD", "5"))
	if err != nil {
		return fmt.Errorf("invalid BREAKER_FAILURE_THRESHOLD: %w", err)
	}
	successThreshold, err := strconv.Atoi(getEnvOrDefault("BREAKER_SUCCESS_THRESHOLD", "3"))
	if err != nil {
		return fmt.Errorf("invalid BREAKER_SUCCESS_THRESHOLD: %w", err)
	}
	cooldown, err := time.ParseDuration(getEnvOrDefault("BREAKER_COOLDOWN", "60s"))
	if err != nil {
		return fmt.Errorf("invalid BREAKER_COOLDOWN: %w", err)
	}

	verificationTTL, err := time.ParseDuration(getEnvOrDefault("VERIFICATION_TTL", "15m"))
	if err != nil {
		return fmt.Errorf("invalid VERIFICATION_TTL: %w", err)
	}
	sweepInterval, err := time.ParseDuration(getEnvOrDefault("SWEEP_INTERVAL", "5m"))
	if err != nil {
		return fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	warnWindow, err := time.ParseDuration(getEnvOrDefault("EXPIRY_WARN_WINDOW", "1h"))
	if err != nil {
		return fmt.Errorf("invalid EXPIRY_WARN_WINDOW: %w", err)
	}
	bulkMin, err := strconv.Atoi(getEnvOrDefault("BULK_RENTAL_MIN_COUNT", "5"))
	if err != nil {
		return fmt.Errorf("invalid BULK_RENTAL_MIN_COUNT: %w", err)
	}

	AppConfig = &Config{
		// Server configuration
		Port:        port,
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),

		// MongoDB configuration
		MongoURI:      getEnvOrDefault("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnvOrDefault("MONGODB_DATABASE", "numvend"),

		// Redis configuration
		RedisURI:      getEnvOrDefault("REDIS_URI", "localhost:6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		// Collection names
		AccountCollection:      getEnvOrDefault("MONGODB_ACCOUNT_COLLECTION", "accounts"),
		VerificationCollection: getEnvOrDefault("MONGODB_VERIFICATION_COLLECTION", "verifications"),
		RentalCollection:       getEnvOrDefault("MONGODB_RENTAL_COLLECTION", "rentals"),
		TransactionCollection:  getEnvOrDefault("MONGODB_TRANSACTION_COLLECTION", "transactions"),
		BreakerCollection:      getEnvOrDefault("MONGODB_BREAKER_COLLECTION", "breaker_states"),

		// Provider configuration
		ProviderBaseURL:     providerBaseURL,
		ProviderAPIKey:      providerAPIKey,
		ProviderCallTimeout: callTimeout,
		ProviderMaxAttempts: maxAttempts,
		ProviderBaseDelay:   baseDelay,
		ProviderMaxDelay:    maxDelay,

		// Circuit breaker configuration
		BreakerFailureThreshold: failureThreshold,
		BreakerSuccessThreshold: successThreshold,
		BreakerCooldown:         cooldown,

		// Lifecycle configuration
		VerificationTTL:    verificationTTL,
		SweepInterval:      sweepInterval,
		ExpiryWarnWindow:   warnWindow,
		BulkRentalMinCount: bulkMin,

		// Tracing configuration
		TracingEnabled:  getEnvOrDefault("TRACING_ENABLED", "false") == "true",
		TracingEndpoint: getEnvOrDefault("TRACING_ENDPOINT", "localhost:4317"),
	}

	return nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
