package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort string

	// Import pipeline
	ImportPreviewTTL  time.Duration // how long a parsed preview stays claimable in Redis
	ImportMaxFileMB   int
	ImportErrorsShown int // bounded error excerpt size on commit summaries

	// Collections / reminders
	DefaultCurrency     string
	DefaultDueDays      int // due date fallback: issue date + N days
	ReminderLeadDays    int // default lead time for new reminder configs
	AgingSweepInterval  time.Duration
	ReminderRunInterval time.Duration

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string
	EmailLogFile    string // when set, emails are also appended to this file

	// WhatsApp reminder channel (outbound webhook; empty disables real sends)
	WhatsAppWebhookURL string

	// AWS S3 (import file archival; empty bucket disables archival)
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string

	// App Defaults
	AppName string

	// Rate Limiting Defaults
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "morosidad")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.DefaultCurrency = getEnv("DEFAULT_CURRENCY", "CLP")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "cobranza@cobrapyme.example.com")
	cfg.EmailLogFile = getEnv("EMAIL_LOG_FILE", "")
	cfg.WhatsAppWebhookURL = getEnv("WHATSAPP_WEBHOOK_URL", "")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.AppName = getEnv("APP_NAME", "CobraPyme")

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "3600"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	previewTTLSeconds, err := strconv.ParseInt(getEnv("IMPORT_PREVIEW_TTL_SECONDS", "1800"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid IMPORT_PREVIEW_TTL_SECONDS: %w", err)
	}
	cfg.ImportPreviewTTL = time.Duration(previewTTLSeconds) * time.Second

	cfg.ImportMaxFileMB, err = strconv.Atoi(getEnv("IMPORT_MAX_FILE_MB", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMPORT_MAX_FILE_MB: %w", err)
	}

	cfg.ImportErrorsShown, err = strconv.Atoi(getEnv("IMPORT_ERRORS_SHOWN", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMPORT_ERRORS_SHOWN: %w", err)
	}

	cfg.DefaultDueDays, err = strconv.Atoi(getEnv("DEFAULT_DUE_DAYS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_DUE_DAYS: %w", err)
	}

	cfg.ReminderLeadDays, err = strconv.Atoi(getEnv("REMINDER_LEAD_DAYS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_LEAD_DAYS: %w", err)
	}

	sweepMinutes, err := strconv.ParseInt(getEnv("AGING_SWEEP_INTERVAL_MINUTES", "60"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid AGING_SWEEP_INTERVAL_MINUTES: %w", err)
	}
	cfg.AgingSweepInterval = time.Duration(sweepMinutes) * time.Minute

	reminderMinutes, err := strconv.ParseInt(getEnv("REMINDER_RUN_INTERVAL_MINUTES", "1440"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_RUN_INTERVAL_MINUTES: %w", err)
	}
	cfg.ReminderRunInterval = time.Duration(reminderMinutes) * time.Minute

	// Rate Limiting
	cfg.RateLimitBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REFILL_RATE: %w", err)
	}

	return cfg, nil
}
