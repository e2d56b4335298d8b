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
	LogFormat     string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	LiveCallTTL   time.Duration

	UseMemoryQueue     bool
	AnalysisQueueURL   string
	AnalysisJobsTable  string
	WorkerCount        int
	ReceiveWaitSeconds int
	ReceiveBatchSize   int

	// LLM backend for conversation analysis: groq, bedrock or gemini.
	AnalysisLLMBackend string
	GroqAPIKey         string
	GroqBaseURL        string
	GroqModel          string
	BedrockModelID     string
	GeminiAPIKey       string
	GeminiModelID      string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	RecordingsEnabled bool
	RecordingsBucket  string

	EmailProvider        string
	EmailFromAddress     string
	EmailFromName        string
	SendGridAPIKey       string
	SalesInboxEmail      string
	HotLeadAlertsEnabled bool

	FollowupInterval  time.Duration
	FollowupBatchSize int

	AdminJWTSecret     string
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		LiveCallTTL:   getEnvAsDuration("LIVECALL_TTL", 24*time.Hour),

		UseMemoryQueue:     getEnvAsBool("USE_MEMORY_QUEUE", false),
		AnalysisQueueURL:   getEnv("ANALYSIS_QUEUE_URL", ""),
		AnalysisJobsTable:  getEnv("ANALYSIS_JOBS_TABLE", "analysis_jobs"),
		WorkerCount:        getEnvAsInt("WORKER_COUNT", 2),
		ReceiveWaitSeconds: getEnvAsInt("RECEIVE_WAIT_SECONDS", 2),
		ReceiveBatchSize:   getEnvAsInt("RECEIVE_BATCH_SIZE", 5),

		AnalysisLLMBackend: strings.ToLower(strings.TrimSpace(getEnv("ANALYSIS_LLM_BACKEND", "groq"))),
		GroqAPIKey:         getEnv("GROQ_API_KEY", ""),
		GroqBaseURL:        getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqModel:          getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:      getEnv("GEMINI_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RecordingsEnabled: getEnvAsBool("RECORDINGS_ENABLED", false),
		RecordingsBucket:  getEnv("RECORDINGS_BUCKET", ""),

		EmailProvider:        strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "ses"))),
		EmailFromAddress:     getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:        getEnv("EMAIL_FROM_NAME", "Casavoz"),
		SendGridAPIKey:       getEnv("SENDGRID_API_KEY", ""),
		SalesInboxEmail:      getEnv("SALES_INBOX_EMAIL", ""),
		HotLeadAlertsEnabled: getEnvAsBool("HOT_LEAD_ALERTS_ENABLED", true),

		FollowupInterval:  getEnvAsDuration("FOLLOWUP_INTERVAL", time.Minute),
		FollowupBatchSize: getEnvAsInt("FOLLOWUP_BATCH_SIZE", 20),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsSlice splits a comma-separated environment variable into a slice
func getEnvAsSlice(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
