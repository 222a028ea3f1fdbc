package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the VoiceDesk server.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Voice pipeline timing.
	SpeakingDwell   time.Duration
	DemoDwell       time.Duration
	DispatchTimeout time.Duration

	// Transcription.
	DeepgramAPIKey      string
	DeepgramWSBaseURL   string
	DeepgramModel       string
	DeepgramLanguage    string
	DeepgramSampleRate  int
	DeepgramUtteranceMS int

	// Session defaults.
	DefaultVoice    string
	DefaultLanguage string

	// Integrations.
	TrelloAPIKey  string
	TrelloToken   string
	TrelloBoardID string
	TrelloListID  string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	GoogleCalendarID   string

	NotionAPIKey     string
	NotionDatabaseID string

	SlackBotToken  string
	SlackChannelID string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults. A .env file in
// the working directory is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":3001"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "voicedesk"),
		AllowAnyOrigin:      false,
		DeepgramAPIKey:      trimmedEnv("DEEPGRAM_API_KEY"),
		DeepgramWSBaseURL:   envOrDefault("DEEPGRAM_WS_BASE_URL", "wss://api.deepgram.com"),
		DeepgramModel:       envOrDefault("DEEPGRAM_LISTEN_MODEL", "nova-2"),
		DeepgramLanguage:    envOrDefault("DEEPGRAM_LANGUAGE", "en-US"),
		DeepgramSampleRate:  16000,
		DeepgramUtteranceMS: 1500,
		DefaultVoice:        envOrDefault("VOICE_MODEL", "aura-asteria-en"),
		DefaultLanguage:     envOrDefault("VOICE_LANGUAGE", "en-US"),
		TrelloAPIKey:        trimmedEnv("TRELLO_API_KEY"),
		TrelloToken:         trimmedEnv("TRELLO_TOKEN"),
		TrelloBoardID:       trimmedEnv("TRELLO_BOARD_ID"),
		TrelloListID:        trimmedEnv("TRELLO_LIST_ID"),
		GoogleClientID:      trimmedEnv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:  trimmedEnv("GOOGLE_CLIENT_SECRET"),
		GoogleRefreshToken:  trimmedEnv("GOOGLE_REFRESH_TOKEN"),
		GoogleCalendarID:    envOrDefault("GOOGLE_CALENDAR_ID", "primary"),
		NotionAPIKey:        trimmedEnv("NOTION_API_KEY"),
		NotionDatabaseID:    trimmedEnv("NOTION_DATABASE_ID"),
		SlackBotToken:       trimmedEnv("SLACK_BOT_TOKEN"),
		SlackChannelID:      trimmedEnv("SLACK_CHANNEL_ID"),
		DatabaseURL:         trimmedEnv("DATABASE_URL"),
		ShutdownTimeout:     15 * time.Second,
		SpeakingDwell:       2 * time.Second,
		DemoDwell:           2 * time.Second,
		DispatchTimeout:     15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeakingDwell, err = durationFromEnv("VOICE_SPEAKING_DWELL", cfg.SpeakingDwell)
	if err != nil {
		return Config{}, err
	}
	cfg.DemoDwell, err = durationFromEnv("VOICE_DEMO_DWELL", cfg.DemoDwell)
	if err != nil {
		return Config{}, err
	}
	cfg.DispatchTimeout, err = durationFromEnv("VOICE_DISPATCH_TIMEOUT", cfg.DispatchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.DeepgramSampleRate, err = intFromEnv("DEEPGRAM_SAMPLE_RATE", cfg.DeepgramSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.DeepgramUtteranceMS, err = intFromEnv("DEEPGRAM_UTTERANCE_END_MS", cfg.DeepgramUtteranceMS)
	if err != nil {
		return Config{}, err
	}

	if cfg.SpeakingDwell <= 0 {
		return Config{}, fmt.Errorf("VOICE_SPEAKING_DWELL must be positive")
	}
	if cfg.DemoDwell <= 0 {
		return Config{}, fmt.Errorf("VOICE_DEMO_DWELL must be positive")
	}
	if cfg.DispatchTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_DISPATCH_TIMEOUT must be positive")
	}
	if cfg.DeepgramSampleRate <= 0 {
		return Config{}, fmt.Errorf("DEEPGRAM_SAMPLE_RATE must be positive")
	}
	if cfg.DeepgramUtteranceMS <= 0 {
		return Config{}, fmt.Errorf("DEEPGRAM_UTTERANCE_END_MS must be positive")
	}

	return cfg, nil
}

// DemoMode reports whether the transcription layer should run without Deepgram.
func (c Config) DemoMode() bool {
	return c.DeepgramAPIKey == ""
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
