package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (rate limiting, delayed abandonment tasks)
	Redis RedisConfig

	// JWT configuration
	JWT JWTConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Routing (distance) configuration
	Routing RoutingConfig

	// Booking rules
	Booking BookingConfig

	// SMS configuration
	SMS SMSConfig

	// Email configuration
	Email EmailConfig

	// Kafka configuration for booking lifecycle events
	Kafka KafkaConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	RunWorker   bool   // run the asynq worker inside the API process
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AutoMigrate        bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string // empty disables Redis-backed features
	Password string
	DB       int
}

// Enabled reports whether a Redis address has been configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// PaymentConfig holds Razorpay-style gateway configuration
type PaymentConfig struct {
	BaseURL       string
	KeyID         string
	KeySecret     string // signs order|payment confirmations (SECRET)
	WebhookSecret string // signs webhook bodies (SECRET)
	Currency      string
}

// RoutingConfig holds OpenRouteService configuration
type RoutingConfig struct {
	BaseURL           string
	APIKey            string // empty means great-circle distances only
	RequestsPerMinute int
	Timeout           time.Duration
}

// BookingConfig holds reservation rules
type BookingConfig struct {
	PaymentTimeout  time.Duration
	AdvancePercent  int
	Timezone        string
	SweepBatchSize  int
	SweepSchedule   string // robfig/cron spec with seconds
	ReserveRequests int    // per user per window
	ReserveWindow   time.Duration
}

// SMSConfig holds SMS gateway configuration
type SMSConfig struct {
	Mode   string // "dev" logs messages, "production" sends them
	APIURL string
	APIKey string
	Sender string
}

// EmailConfig holds SMTP configuration
type EmailConfig struct {
	Host     string // empty disables email
	Port     int
	Username string
	Password string
	From     string
}

// KafkaConfig holds the booking event producer settings
type KafkaConfig struct {
	Brokers []string // empty disables event publishing
	Topic   string
}

// RateLimitConfig holds generic request rate limits
type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			RunWorker:   getEnvAsBool("RUN_WORKER", true),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			AutoMigrate:        getEnvAsBool("DATABASE_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Payment: PaymentConfig{
			BaseURL:       getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
			KeyID:         getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:     getEnv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
			Currency:      getEnv("PAYMENT_CURRENCY", "INR"),
		},
		Routing: RoutingConfig{
			BaseURL:           getEnv("ORS_BASE_URL", "https://api.openrouteservice.org"),
			APIKey:            getEnv("ORS_API_KEY", ""),
			RequestsPerMinute: getEnvAsInt("ORS_REQUESTS_PER_MINUTE", 40),
			Timeout:           getEnvAsDuration("ORS_TIMEOUT", 10*time.Second),
		},
		Booking: BookingConfig{
			PaymentTimeout:  getEnvAsDuration("BOOKING_PAYMENT_TIMEOUT", 15*time.Minute),
			AdvancePercent:  getEnvAsInt("BOOKING_ADVANCE_PERCENT", 40),
			Timezone:        getEnv("BOOKING_TIMEZONE", "Asia/Kolkata"),
			SweepBatchSize:  getEnvAsInt("SWEEP_BATCH_SIZE", 100),
			SweepSchedule:   getEnv("SWEEP_SCHEDULE", "0 * * * * *"),
			ReserveRequests: getEnvAsInt("RESERVE_RATE_LIMIT", 10),
			ReserveWindow:   getEnvAsDuration("RESERVE_RATE_WINDOW", time.Minute),
		},
		SMS: SMSConfig{
			Mode:   getEnv("SMS_MODE", "dev"),
			APIURL: getEnv("SMS_API_URL", ""),
			APIKey: getEnv("SMS_API_KEY", ""),
			Sender: getEnv("SMS_SENDER", "RIDEBOOK"),
		},
		Email: EmailConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_BOOKING_TOPIC", "booking-events"),
		},
		RateLimit: RateLimitConfig{
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Payment.KeySecret == "" {
		return fmt.Errorf("RAZORPAY_KEY_SECRET is required")
	}

	if c.Booking.PaymentTimeout <= 0 {
		return fmt.Errorf("BOOKING_PAYMENT_TIMEOUT must be positive")
	}

	if c.Booking.AdvancePercent <= 0 || c.Booking.AdvancePercent > 100 {
		return fmt.Errorf("BOOKING_ADVANCE_PERCENT must be between 1 and 100, got %d", c.Booking.AdvancePercent)
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", c.Booking.Timezone, err)
	}

	if c.SMS.Mode == "production" && c.SMS.APIURL == "" {
		return fmt.Errorf("SMS_API_URL is required in production SMS mode")
	}

	return nil
}

// Location returns the timezone schedules are expressed in
func (b BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
