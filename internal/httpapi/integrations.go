package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/voicedeskhq/voicedesk/internal/integrations"
	"github.com/voicedeskhq/voicedesk/internal/logging"
)

func withConnectTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 15*time.Second)
}

func (s *Server) handleAllStatuses(w http.ResponseWriter, r *http.Request) {
	statuses := make(map[string]integrations.Status, 4)
	for _, p := range s.providers.All() {
		statuses[p.Name()] = p.Status(r.Context())
	}
	respondSuccess(w, http.StatusOK, "Integration status retrieved", statuses)
}

func (s *Server) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := s.providers.ByName(chi.URLParam(r, "type"))
	if !ok {
		respondError(w, http.StatusNotFound, "Unknown integration")
		return
	}
	respondSuccess(w, http.StatusOK, "Status retrieved", p.Status(r.Context()))
}

type trelloConnectRequest struct {
	APIKey  string `json:"apiKey" validate:"required"`
	Token   string `json:"token" validate:"required"`
	BoardID string `json:"boardId"`
	ListID  string `json:"listId"`
}

type calendarConnectRequest struct {
	ClientID     string `json:"clientId" validate:"required"`
	ClientSecret string `json:"clientSecret" validate:"required"`
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type notionConnectRequest struct {
	APIKey     string `json:"apiKey" validate:"required"`
	DatabaseID string `json:"databaseId"`
}

type slackConnectRequest struct {
	BotToken       string `json:"botToken" validate:"required"`
	DefaultChannel string `json:"defaultChannel"`
}

// connectCredentials validates the provider-specific payload and flattens it
// into the credential map the provider's Connect expects.
func (s *Server) connectCredentials(r *http.Request, provider string) (map[string]string, error) {
	switch provider {
	case "trello":
		var req trelloConnectRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		if err := s.validate.Struct(req); err != nil {
			return nil, err
		}
		return map[string]string{
			"apiKey":  req.APIKey,
			"token":   req.Token,
			"boardId": req.BoardID,
			"listId":  req.ListID,
		}, nil
	case "calendar":
		var req calendarConnectRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		if err := s.validate.Struct(req); err != nil {
			return nil, err
		}
		return map[string]string{
			"clientId":     req.ClientID,
			"clientSecret": req.ClientSecret,
			"refreshToken": req.RefreshToken,
		}, nil
	case "notion":
		var req notionConnectRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		if err := s.validate.Struct(req); err != nil {
			return nil, err
		}
		return map[string]string{
			"apiKey":     req.APIKey,
			"databaseId": req.DatabaseID,
		}, nil
	case "slack":
		var req slackConnectRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		if err := s.validate.Struct(req); err != nil {
			return nil, err
		}
		return map[string]string{
			"botToken":       req.BotToken,
			"defaultChannel": req.DefaultChannel,
		}, nil
	}
	return nil, nil
}

func (s *Server) handleProviderConnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "type")
	p, ok := s.providers.ByName(name)
	if !ok {
		respondError(w, http.StatusNotFound, "Unknown integration")
		return
	}

	credentials, err := s.connectCredentials(r, name)
	if err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			respondValidationError(w, fields)
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := withConnectTimeout(r)
	defer cancel()
	if err := p.Connect(ctx, credentials); err != nil {
		if s.metrics != nil {
			s.metrics.ProviderErrors.WithLabelValues(name).Inc()
		}
		logging.Error(logging.Fields{"provider": name, "error": err.Error()}, "failed to connect integration")
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondSuccess(w, http.StatusOK, "Integration connected successfully", map[string]any{"connected": true})
}

func (s *Server) handleProviderDisconnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "type")
	p, ok := s.providers.ByName(name)
	if !ok {
		respondError(w, http.StatusNotFound, "Unknown integration")
		return
	}
	if err := p.Disconnect(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to disconnect integration")
		return
	}
	respondSuccess(w, http.StatusOK, "Integration disconnected", map[string]any{"connected": false})
}

func (s *Server) handleProviderTest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "type")
	p, ok := s.providers.ByName(name)
	if !ok {
		respondError(w, http.StatusNotFound, "Unknown integration")
		return
	}
	ctx, cancel := withConnectTimeout(r)
	defer cancel()
	result := p.Test(ctx)
	if !result.Success && s.metrics != nil {
		s.metrics.ProviderErrors.WithLabelValues(name).Inc()
	}
	respondSuccess(w, http.StatusOK, "Integration test completed", result)
}

func (s *Server) handleTrelloBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.providers.Trello.Boards(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondSuccess(w, http.StatusOK, "Boards retrieved", boards)
}

func (s *Server) handleTrelloLists(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardId")
	lists, err := s.providers.Trello.Lists(r.Context(), boardID)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondSuccess(w, http.StatusOK, "Lists retrieved", lists)
}

func (s *Server) handleCalendarEvents(w http.ResponseWriter, r *http.Request) {
	day := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
			return
		}
		day = parsed
	}
	events, err := s.providers.Calendar.Events(r.Context(), day)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondSuccess(w, http.StatusOK, "Events retrieved", events)
}

func (s *Server) handleNotionDatabases(w http.ResponseWriter, r *http.Request) {
	dbs, err := s.providers.Notion.Databases(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondSuccess(w, http.StatusOK, "Databases retrieved", dbs)
}

func (s *Server) handleSlackChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.providers.Slack.Channels(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondSuccess(w, http.StatusOK, "Channels retrieved", channels)
}
