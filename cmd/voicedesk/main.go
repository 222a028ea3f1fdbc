package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/voicedeskhq/voicedesk/internal/config"
	"github.com/voicedeskhq/voicedesk/internal/history"
	"github.com/voicedeskhq/voicedesk/internal/httpapi"
	"github.com/voicedeskhq/voicedesk/internal/integrations"
	"github.com/voicedeskhq/voicedesk/internal/intent"
	"github.com/voicedeskhq/voicedesk/internal/observability"
	"github.com/voicedeskhq/voicedesk/internal/registry"
	"github.com/voicedeskhq/voicedesk/internal/session"
	"github.com/voicedeskhq/voicedesk/internal/settings"
	"github.com/voicedeskhq/voicedesk/internal/transcribe"
	"github.com/voicedeskhq/voicedesk/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	historyStore, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	defer historyStore.Close()

	providers := integrations.NewSet(
		integrations.TrelloConfig{
			APIKey:  cfg.TrelloAPIKey,
			Token:   cfg.TrelloToken,
			BoardID: cfg.TrelloBoardID,
			ListID:  cfg.TrelloListID,
		},
		integrations.CalendarConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RefreshToken: cfg.GoogleRefreshToken,
			CalendarID:   cfg.GoogleCalendarID,
		},
		integrations.NotionConfig{
			APIKey:     cfg.NotionAPIKey,
			DatabaseID: cfg.NotionDatabaseID,
		},
		integrations.SlackConfig{
			BotToken:       cfg.SlackBotToken,
			DefaultChannel: cfg.SlackChannelID,
		},
	)

	adapter := transcribe.NewAdapter(transcribe.DeepgramConfig{
		APIKey:      cfg.DeepgramAPIKey,
		WSBaseURL:   cfg.DeepgramWSBaseURL,
		Model:       cfg.DeepgramModel,
		Language:    cfg.DeepgramLanguage,
		SampleRate:  cfg.DeepgramSampleRate,
		UtteranceMS: cfg.DeepgramUtteranceMS,
	}, cfg.DemoDwell)
	log.Printf("transcription adapter: %s", adapter.Mode())

	sessions := session.NewManager()
	settingsStore := settings.NewStore(cfg.DefaultVoice)
	dispatch := registry.New(providers, metrics, cfg.DispatchTimeout)

	handler := voice.NewHandler(voice.Options{
		Sessions:      sessions,
		Recognizer:    intent.NewRecognizer(),
		Registry:      dispatch,
		Adapter:       adapter,
		History:       historyStore,
		Stats:         settingsStore,
		Metrics:       metrics,
		SpeakingDwell: cfg.SpeakingDwell,
	})

	api := httpapi.New(cfg, sessions, handler, providers, historyStore, settingsStore, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
