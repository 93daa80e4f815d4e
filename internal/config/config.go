package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Server configures the tutor API (cmd/server)
type Server struct {
	Port      string
	LogLevel  string
	JWTSecret string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	RealtimeModel    string
	DefaultVoice     string
	GeminiAPIKey     string
	GeminiModel      string
	CredentialPerMin int
	RedisURL         string
	StoreDriver      string
	MongoURI         string
	MongoDatabase    string
	PostgresURL      string
	ShutdownTimeout  time.Duration
	RequestTimeout   time.Duration
}

// Client configures the voice call process (cmd/voicecall)
type Client struct {
	ControlPort string
	LogLevel    string

	APIURL    string
	UserToken string
	ChatID    string
	ChatType  string
	Voice     string

	RealtimeURL   string
	RealtimeModel string

	// InitialInstruction, when set, is sent as a user message once the data channel opens
	InitialInstruction string

	MicOggPath     string
	SpeakerOggPath string
	STUNServer     string

	TickInterval    time.Duration
	FlushEvery      int
	HTTPTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LoadServer reads the tutor API configuration from the environment
func LoadServer() Server {
	_ = godotenv.Load()

	return Server{
		Port:             envStr("PORT", "8080"),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		JWTSecret:        envStr("JWT_SECRET", "your-secret-key"),
		OpenAIAPIKey:     envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    envStr("OPENAI_BASE_URL", ""),
		RealtimeModel:    envStr("OPENAI_REALTIME_MODEL", "gpt-4o-mini-realtime-preview-2024-12-17"),
		DefaultVoice:     envStr("OPENAI_REALTIME_VOICE", "alloy"),
		GeminiAPIKey:     envStr("GEMINI_API_KEY", ""),
		GeminiModel:      envStr("GEMINI_MODEL", "gemini-2.0-flash"),
		CredentialPerMin: envInt("CREDENTIAL_RATE_LIMIT", 10),
		RedisURL:         envStr("REDIS_URL", ""),
		StoreDriver:      envStr("STORE_DRIVER", "memory"),
		MongoURI:         envStr("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:    envStr("MONGODB_DATABASE", "tutor"),
		PostgresURL:      envStr("POSTGRES_URL", ""),
		ShutdownTimeout:  envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		RequestTimeout:   envDuration("REQUEST_TIMEOUT", 30*time.Second),
	}
}

// LoadClient reads the voice call process configuration from the environment
func LoadClient() Client {
	_ = godotenv.Load()

	return Client{
		ControlPort:        envStr("CONTROL_PORT", "8090"),
		LogLevel:           envStr("LOG_LEVEL", "info"),
		APIURL:             envStr("TUTOR_API_URL", "http://localhost:8080"),
		UserToken:          envStr("TUTOR_USER_TOKEN", ""),
		ChatID:             envStr("CHAT_ID", ""),
		ChatType:           envStr("CHAT_TYPE", "default"),
		Voice:              envStr("VOICE", "alloy"),
		RealtimeURL:        envStr("REALTIME_URL", "https://api.openai.com/v1/realtime"),
		RealtimeModel:      envStr("REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
		InitialInstruction: envStr("INITIAL_INSTRUCTION", "You are talking with a child."),
		MicOggPath:         envStr("MIC_OGG_PATH", ""),
		SpeakerOggPath:     envStr("SPEAKER_OGG_PATH", ""),
		STUNServer:         envStr("STUN_SERVER", "stun:stun.l.google.com:19302"),
		TickInterval:       envDuration("TICK_INTERVAL", time.Second),
		FlushEvery:         envInt("FLUSH_EVERY", 5),
		HTTPTimeout:        envDuration("HTTP_TIMEOUT", 15*time.Second),
		ShutdownTimeout:    envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
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

func envDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
