package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// WhatsApp Cloud API
	VerifyToken   string
	WhatsAppToken string
	AppSecret     string
	PhoneNumberID string
	GraphAPIBase  string

	// Groq (OpenAI-compatible) LLM / STT / TTS
	GroqAPIKey   string
	GroqBaseURL  string
	ChatModel    string
	VisionModel  string
	WhisperModel string
	SpeechModel  string
	SpeechVoice  string

	// Google Cloud TTS (Spanish voice replies)
	GoogleCredentialsJSON string

	// Session memory. Empty RedisURL disables conversational memory.
	RedisURL        string
	MaxHistoryTurns int
	SessionTTL      time.Duration

	// Dedup window. DATABASE_URL selects the Postgres-backed store.
	DatabaseURL string
	DedupTTL    time.Duration

	// Background job queue
	UseMemoryQueue       bool
	WorkerCount          int
	ConversationQueueURL string
	AWSRegion            string
	AWSEndpointOverride  string

	// Media transcoding
	FFmpegBin string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		VerifyToken:   getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken: getEnv("WHATSAPP_TOKEN", ""),
		AppSecret:     getEnv("APP_SECRET", ""),
		PhoneNumberID: getEnv("PHONE_NUMBER_ID", ""),
		GraphAPIBase:  getEnv("GRAPH_API_BASE", "https://graph.facebook.com/v21.0"),

		GroqAPIKey:   getEnv("GROQ_API_KEY", ""),
		GroqBaseURL:  getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		ChatModel:    getEnv("CHAT_MODEL", "llama-3.3-70b-versatile"),
		VisionModel:  getEnv("VISION_MODEL", "meta-llama/llama-4-scout-17b-16e-instruct"),
		WhisperModel: getEnv("WHISPER_MODEL", "whisper-large-v3-turbo"),
		SpeechModel:  getEnv("SPEECH_MODEL", "playai-tts"),
		SpeechVoice:  getEnv("SPEECH_VOICE", "Arista-PlayAI"),

		GoogleCredentialsJSON: getEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", ""),

		RedisURL:        getEnv("REDIS_URL", ""),
		MaxHistoryTurns: getEnvAsInt("MAX_HISTORY_TURNS", 20),
		SessionTTL:      getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DedupTTL:    getEnvAsDuration("DEDUP_TTL", 24*time.Hour),

		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		FFmpegBin: getEnv("FFMPEG_BIN", "ffmpeg"),
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
