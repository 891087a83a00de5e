package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	// LLMProvider selects the hosted model backend: "gemini" or "openai".
	LLMProvider   string
	GeminiKey     string
	GeminiModel   string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	PersonaPrompt string

	// DevMode exposes error details in relay error bodies.
	DevMode         bool
	StreamCharDelay time.Duration

	SilenceInterval   time.Duration
	RestartGrace      time.Duration
	CaptureMaxRetries int

	HistoryBackend string
	HistoryDSN     string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string
	StorageDir             string

	UserSigningSecret string
}

// APIKey returns the secret of the selected model provider.
func (c Config) APIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIKey
	}
	return c.GeminiKey
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it: %v", err)
	}

	cfg := Config{
		HTTPAddress:            getEnv("HTTP_ADDRESS", ":8080"),
		LLMProvider:            strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		GeminiKey:              os.Getenv("GEMINI_API_KEY"),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-pro"),
		OpenAIKey:              os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:          os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:            getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		PersonaPrompt:          os.Getenv("PERSONA_PROMPT"),
		DevMode:                getBool("DEV_MODE", false),
		StreamCharDelay:        getDuration("STREAM_CHAR_DELAY", 0),
		SilenceInterval:        getDuration("SILENCE_INTERVAL", 3*time.Second),
		RestartGrace:           getDuration("RESTART_GRACE", 800*time.Millisecond),
		CaptureMaxRetries:      getInt("CAPTURE_MAX_RETRIES", 5),
		HistoryBackend:         strings.ToLower(getEnv("HISTORY_BACKEND", "memory")),
		HistoryDSN:             os.Getenv("HISTORY_DSN"),
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "voice-recording"),
		StorageDir:             getEnv("STORAGE_DIR", "data/uploads"),
		UserSigningSecret:      os.Getenv("USER_SIGNING_SECRET"),
	}

	if cfg.LLMProvider != "gemini" && cfg.LLMProvider != "openai" {
		log.Printf("Warning: unknown LLM_PROVIDER %q - falling back to gemini", cfg.LLMProvider)
		cfg.LLMProvider = "gemini"
	}
	if cfg.APIKey() == "" {
		log.Printf("Warning: API key for provider %s not set - relay will answer 500", cfg.LLMProvider)
	}
	if cfg.RestartGrace <= 0 {
		// zero grace lets the recognizer catch the tail of the assistant's own voice
		cfg.RestartGrace = 800 * time.Millisecond
	}
	if cfg.SilenceInterval <= 0 {
		cfg.SilenceInterval = 3 * time.Second
	}
	if cfg.UserSigningSecret == "" {
		log.Println("Warning: USER_SIGNING_SECRET not set - X-User-ID header is trusted as is")
	}

	log.Printf("config: HTTP_ADDRESS=%s LLM_PROVIDER=%s HISTORY_BACKEND=%s", cfg.HTTPAddress, cfg.LLMProvider, cfg.HistoryBackend)
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go duration strings ("3s") or bare milliseconds ("3000").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %s", key, v, defaultValue)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %d", key, v, defaultValue)
		return defaultValue
	}
	return n
}

func getBool(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
