// Package httpapi exposes the REST facade and the voice websocket.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voicedeskhq/voicedesk/internal/config"
	"github.com/voicedeskhq/voicedesk/internal/history"
	"github.com/voicedeskhq/voicedesk/internal/integrations"
	"github.com/voicedeskhq/voicedesk/internal/observability"
	"github.com/voicedeskhq/voicedesk/internal/protocol"
	"github.com/voicedeskhq/voicedesk/internal/session"
	"github.com/voicedeskhq/voicedesk/internal/settings"
)

// ConnectionRunner serves one websocket connection's voice loop.
type ConnectionRunner interface {
	RunConnection(ctx context.Context, connectionID string, inbound <-chan []byte, outbound chan<- any)
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	runner    ConnectionRunner
	providers *integrations.Set
	history   history.Store
	settings  *settings.Store
	metrics   *observability.Metrics
	validate  *validator.Validate
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, runner ConnectionRunner, providers *integrations.Set, historyStore history.Store, settingsStore *settings.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		runner:    runner,
		providers: providers,
		history:   historyStore,
		settings:  settingsStore,
		metrics:   metrics,
		validate:  validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browser connections must come from the same origin so a
				// foreign page cannot drive the user's mic session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/voice/ws", s.handleVoiceWS)
	r.Get("/v1/voice/session", s.handleSessionInfo)
	r.Get("/v1/voice/voices", s.handleListVoices)
	r.Post("/v1/voice/speak", s.handleSpeak)
	r.Get("/v1/voice/history", s.handleGetHistory)
	r.Delete("/v1/voice/history", s.handleClearHistory)

	r.Get("/v1/integrations/status", s.handleAllStatuses)
	r.Get("/v1/integrations/{type}/status", s.handleProviderStatus)
	r.Post("/v1/integrations/{type}/connect", s.handleProviderConnect)
	r.Post("/v1/integrations/{type}/disconnect", s.handleProviderDisconnect)
	r.Post("/v1/integrations/{type}/test", s.handleProviderTest)
	r.Get("/v1/integrations/trello/boards", s.handleTrelloBoards)
	r.Get("/v1/integrations/trello/lists/{boardId}", s.handleTrelloLists)
	r.Get("/v1/integrations/calendar/events", s.handleCalendarEvents)
	r.Get("/v1/integrations/notion/databases", s.handleNotionDatabases)
	r.Get("/v1/integrations/slack/channels", s.handleSlackChannels)

	r.Get("/v1/settings", s.handleGetSettings)
	r.Put("/v1/settings", s.handleUpdateSettings)
	r.Post("/v1/settings/reset", s.handleResetSettings)
	r.Get("/v1/settings/stats", s.handleStats)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, "OK", map[string]any{
		"status": "ok",
		"uptime": time.Since(startedAt).Seconds(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, "Ready", map[string]any{
		"status":         "ready",
		"demoMode":       s.cfg.DemoMode(),
		"activeSessions": s.sessions.ActiveCount(),
	})
}

var startedAt = time.Now()

// handleVoiceWS upgrades the connection and hands the raw message stream to
// the voice loop. Writes stay single-threaded in the writer goroutine.
func (s *Server) handleVoiceWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connectionID := uuid.NewString()
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan []byte, 256)
	outbound := make(chan any, 256)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		s.runner.RunConnection(ctx, connectionID, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := protocol.TypeOf(msg); ok && s.metrics != nil {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if s.metrics != nil {
			var env protocol.Envelope
			if json.Unmarshal(data, &env) == nil && env.Type != "" {
				s.metrics.WSMessages.WithLabelValues("inbound", string(env.Type)).Inc()
			}
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- data:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	}
}

type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Errors    any    `json:"errors,omitempty"`
	Timestamp string `json:"timestamp"`
}

type paginatedEnvelope struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message"`
	Data       any                `json:"data"`
	Pagination history.Pagination `json:"pagination"`
	Timestamp  string             `json:"timestamp"`
}

func respondSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func respondPaginated(w http.ResponseWriter, message string, data any, pg history.Pagination) {
	writeJSON(w, http.StatusOK, paginatedEnvelope{
		Success:    true,
		Message:    message,
		Data:       data,
		Pagination: pg,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func respondValidationError(w http.ResponseWriter, errs any) {
	writeJSON(w, http.StatusBadRequest, envelope{
		Success:   false,
		Message:   "Validation failed",
		Errors:    errs,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
