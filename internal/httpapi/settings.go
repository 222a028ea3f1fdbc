package httpapi

import (
	"net/http"

	"github.com/voicedeskhq/voicedesk/internal/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, "Settings retrieved successfully", s.settings.Get())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update settings.Update
	if err := decodeJSON(r, &update); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	respondSuccess(w, http.StatusOK, "Settings updated successfully", s.settings.Apply(update))
}

func (s *Server) handleResetSettings(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, "Settings reset successfully", s.settings.Reset())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, "Stats retrieved successfully", s.settings.Stats())
}
