package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":3001" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":3001")
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Fatalf("DeepgramModel = %q, want %q", cfg.DeepgramModel, "nova-2")
	}
	if cfg.SpeakingDwell != 2*time.Second {
		t.Fatalf("SpeakingDwell = %v, want 2s", cfg.SpeakingDwell)
	}
	if !cfg.DemoMode() {
		t.Fatalf("DemoMode() = false, want true with no Deepgram key")
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("VOICE_SPEAKING_DWELL", "250ms")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DemoMode() {
		t.Fatalf("DemoMode() = true, want false with Deepgram key set")
	}
	if cfg.SpeakingDwell != 250*time.Millisecond {
		t.Fatalf("SpeakingDwell = %v, want 250ms", cfg.SpeakingDwell)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("VOICE_DEMO_DWELL", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want parse error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"VOICE_SPEAKING_DWELL",
		"VOICE_DEMO_DWELL",
		"VOICE_DISPATCH_TIMEOUT",
		"VOICE_MODEL",
		"VOICE_LANGUAGE",
		"DEEPGRAM_API_KEY",
		"DEEPGRAM_WS_BASE_URL",
		"DEEPGRAM_LISTEN_MODEL",
		"DEEPGRAM_LANGUAGE",
		"DEEPGRAM_SAMPLE_RATE",
		"DEEPGRAM_UTTERANCE_END_MS",
		"TRELLO_API_KEY",
		"TRELLO_TOKEN",
		"TRELLO_BOARD_ID",
		"TRELLO_LIST_ID",
		"GOOGLE_CLIENT_ID",
		"GOOGLE_CLIENT_SECRET",
		"GOOGLE_REFRESH_TOKEN",
		"GOOGLE_CALENDAR_ID",
		"NOTION_API_KEY",
		"NOTION_DATABASE_ID",
		"SLACK_BOT_TOKEN",
		"SLACK_CHANNEL_ID",
		"DATABASE_URL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
