package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Engine tuning
	MaxFollowUps            int
	BookingIntentThreshold  int
	SessionTTL              time.Duration
	TurnTimeout             time.Duration
	CollaboratorTimeout     time.Duration
	AllowedWidgetOrigins    []string
	WidgetRatePerSecond     float64
	WidgetRateBurst         int

	// Persistence
	DatabaseURL       string
	SessionsTable     string
	UseMemorySessions bool
	RedisAddr         string
	RedisPassword     string
	RedisTLS          bool

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Fallback responder (Bedrock)
	BedrockModelID string

	// Admin API
	AdminJWTSecret string

	// Handoff notifications
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string
	SalesTeamEmail    string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		MaxFollowUps:           getEnvAsInt("MAX_FOLLOW_UPS", 2),
		BookingIntentThreshold: getEnvAsInt("BOOKING_INTENT_THRESHOLD", 50),
		SessionTTL:             getEnvAsDuration("SESSION_TTL", 30*24*time.Hour),
		TurnTimeout:            getEnvAsDuration("TURN_TIMEOUT", 10*time.Second),
		CollaboratorTimeout:    getEnvAsDuration("COLLABORATOR_TIMEOUT", 5*time.Second),
		AllowedWidgetOrigins:   getEnvAsList("ALLOWED_WIDGET_ORIGINS", "*"),
		WidgetRatePerSecond:    getEnvAsFloat("WIDGET_RATE_PER_SECOND", 5),
		WidgetRateBurst:        getEnvAsInt("WIDGET_RATE_BURST", 20),

		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SessionsTable:     getEnv("CHAT_SESSIONS_TABLE", "chat_sessions"),
		UseMemorySessions: getEnvAsBool("USE_MEMORY_SESSIONS", false),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisTLS:          getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		BedrockModelID: getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "SiteChat"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "SiteChat"),
		SalesTeamEmail:    getEnv("SALES_TEAM_EMAIL", ""),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, trimming blanks
func getEnvAsList(key, defaultValue string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
