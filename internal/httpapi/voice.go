package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/voicedeskhq/voicedesk/internal/logging"
)

// VoiceOption is one selectable speech voice.
type VoiceOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	Description string `json:"description"`
}

var voiceOptions = []VoiceOption{
	{ID: "aura-asteria-en", Name: "Asteria", Gender: "Female", Description: "Warm and friendly"},
	{ID: "aura-luna-en", Name: "Luna", Gender: "Female", Description: "Calm and soothing"},
	{ID: "aura-stella-en", Name: "Stella", Gender: "Female", Description: "Professional"},
	{ID: "aura-athena-en", Name: "Athena", Gender: "Female", Description: "Confident"},
	{ID: "aura-hera-en", Name: "Hera", Gender: "Female", Description: "Authoritative"},
	{ID: "aura-orion-en", Name: "Orion", Gender: "Male", Description: "Deep and clear"},
	{ID: "aura-perseus-en", Name: "Perseus", Gender: "Male", Description: "Energetic"},
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, _ *http.Request) {
	active := s.sessions.ActiveCount()
	respondSuccess(w, http.StatusOK, "Session info retrieved", map[string]any{
		"active":         active > 0,
		"activeSessions": active,
		"serverTime":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, "Available voices retrieved", voiceOptions)
}

type speakRequest struct {
	Text  string `json:"text" validate:"required"`
	Voice string `json:"voice"`
}

// handleSpeak acknowledges a TTS request. Synthesis itself happens on the
// client; the endpoint validates and echoes the request the way the voice
// facade expects.
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Text is required")
		return
	}
	if req.Voice == "" {
		req.Voice = s.cfg.DefaultVoice
	}
	logging.Info(logging.Fields{"voice": req.Voice}, "tts request")
	respondSuccess(w, http.StatusOK, "Text-to-speech processed", map[string]any{
		"text":  req.Text,
		"voice": req.Voice,
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	page := intQuery(r, "page", 1)
	limit := intQuery(r, "limit", 10)
	actionType := r.URL.Query().Get("type")

	conversations, pg, err := s.history.List(r.Context(), page, limit, actionType)
	if err != nil {
		logging.Error(logging.Fields{"error": err.Error()}, "failed to get history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve history")
		return
	}
	respondPaginated(w, "History retrieved", map[string]any{"conversations": conversations}, pg)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Clear(r.Context()); err != nil {
		logging.Error(logging.Fields{"error": err.Error()}, "failed to clear history")
		respondError(w, http.StatusInternalServerError, "Failed to clear history")
		return
	}
	logging.Info(nil, "history cleared")
	respondSuccess(w, http.StatusOK, "History cleared successfully", nil)
}

func intQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
