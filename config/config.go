package config

import (
	"os"
	"strconv"
	"time"

	"pizzachat/core"

	"github.com/joho/godotenv"
)

// Config holds process configuration, loaded from the environment.
type Config struct {
	Port string

	// Completion provider
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string
	MaxTokens     int

	// Speech provider
	SpeechEnabled    bool
	ElevenLabsAPIKey string
	VoiceID          string
	SpeechFormat     string // e.g. mp3_44100_128, ulaw_8000

	GreetingClipPath string
	TurnTimeout      time.Duration
}

// Load reads configuration from a .env file (when present) and the process
// environment.
func Load(logger *core.Logger) *Config {
	if logger == nil {
		logger = core.GetLogger()
	}
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using process environment")
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		Model:            getEnv("MODEL_NAME", ""),
		MaxTokens:        getEnvAsInt("MAX_TOKENS", 2048),
		SpeechEnabled:    getEnv("SPEECH_ENABLED", "true") == "true",
		ElevenLabsAPIKey: getEnv("ELEVENLABS_API_KEY", ""),
		VoiceID:          getEnv("ELEVENLABS_VOICE_ID", ""),
		SpeechFormat:     getEnv("SPEECH_FORMAT", ""),
		GreetingClipPath: getEnv("GREETING_CLIP_PATH", "assets/welcome.mp3"),
		TurnTimeout:      time.Duration(getEnvAsInt("TURN_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

// Validate fails fast on missing credentials so a misconfigured gateway
// surfaces at startup instead of as a generic 500 on first call.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return &core.ConfigurationError{Key: "OPENAI_API_KEY"}
	}
	if c.SpeechEnabled && c.ElevenLabsAPIKey == "" {
		return &core.ConfigurationError{Key: "ELEVENLABS_API_KEY"}
	}
	return nil
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a default fallback
func getEnvAsInt(key string, defaultValue int) int {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultValue
	}
	return val
}
