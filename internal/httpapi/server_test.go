package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicedeskhq/voicedesk/internal/config"
	"github.com/voicedeskhq/voicedesk/internal/history"
	"github.com/voicedeskhq/voicedesk/internal/integrations"
	"github.com/voicedeskhq/voicedesk/internal/intent"
	"github.com/voicedeskhq/voicedesk/internal/registry"
	"github.com/voicedeskhq/voicedesk/internal/session"
	"github.com/voicedeskhq/voicedesk/internal/settings"
	"github.com/voicedeskhq/voicedesk/internal/transcribe"
	"github.com/voicedeskhq/voicedesk/internal/voice"
)

func newTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	cfg := config.Config{
		DefaultVoice:    "aura-asteria-en",
		SpeakingDwell:   20 * time.Millisecond,
		DispatchTimeout: 5 * time.Second,
	}
	sessions := session.NewManager()
	providers := integrations.NewSet(
		integrations.TrelloConfig{},
		integrations.CalendarConfig{},
		integrations.NotionConfig{},
		integrations.SlackConfig{},
	)
	store := history.NewInMemoryStore()
	settingsStore := settings.NewStore(cfg.DefaultVoice)
	handler := voice.NewHandler(voice.Options{
		Sessions:      sessions,
		Recognizer:    intent.NewRecognizer(),
		Registry:      registry.New(providers, nil, cfg.DispatchTimeout),
		Adapter:       transcribe.NewDemoAdapter(10 * time.Millisecond),
		History:       store,
		Stats:         settingsStore,
		SpeakingDwell: cfg.SpeakingDwell,
	})

	srv := New(cfg, sessions, handler, providers, store, settingsStore, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, srv
}

func getEnvelope(t *testing.T, url string) envelope {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", url, res.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

func TestHealthAndReady(t *testing.T) {
	ts, _ := newTestServer(t)

	env := getEnvelope(t, ts.URL+"/healthz")
	if !env.Success {
		t.Fatalf("health envelope = %+v", env)
	}

	env = getEnvelope(t, ts.URL+"/readyz")
	data, _ := env.Data.(map[string]any)
	if data["demoMode"] != true {
		t.Fatalf("readyz data = %+v", data)
	}
}

func TestSessionInfoAndVoices(t *testing.T) {
	ts, _ := newTestServer(t)

	env := getEnvelope(t, ts.URL+"/v1/voice/session")
	data, _ := env.Data.(map[string]any)
	if data["active"] != false {
		t.Fatalf("session info = %+v", data)
	}

	env = getEnvelope(t, ts.URL+"/v1/voice/voices")
	voices, _ := env.Data.([]any)
	if len(voices) != 7 {
		t.Fatalf("voices = %d, want 7", len(voices))
	}
}

func TestSpeakValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Post(ts.URL+"/v1/voice/speak", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST speak: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty speak status = %d", res.StatusCode)
	}

	body, _ := json.Marshal(map[string]string{"text": "hello"})
	res, err = http.Post(ts.URL+"/v1/voice/speak", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST speak: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("speak status = %d", res.StatusCode)
	}
	var env envelope
	_ = json.NewDecoder(res.Body).Decode(&env)
	data, _ := env.Data.(map[string]any)
	if data["voice"] != "aura-asteria-en" {
		t.Fatalf("speak data = %+v", data)
	}
}

func TestIntegrationStatusAndTest(t *testing.T) {
	ts, _ := newTestServer(t)

	env := getEnvelope(t, ts.URL+"/v1/integrations/status")
	data, _ := env.Data.(map[string]any)
	for _, name := range []string{"trello", "calendar", "notion", "slack"} {
		st, ok := data[name].(map[string]any)
		if !ok {
			t.Fatalf("missing %s in status payload: %+v", name, data)
		}
		if st["configured"] != false {
			t.Fatalf("%s should be unconfigured: %+v", name, st)
		}
	}

	res, err := http.Post(ts.URL+"/v1/integrations/slack/test", "application/json", nil)
	if err != nil {
		t.Fatalf("POST test: %v", err)
	}
	defer res.Body.Close()
	var testEnv envelope
	_ = json.NewDecoder(res.Body).Decode(&testEnv)
	result, _ := testEnv.Data.(map[string]any)
	if result["success"] != false {
		t.Fatalf("unconfigured slack test should fail: %+v", result)
	}
}

func TestIntegrationConnectValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Post(ts.URL+"/v1/integrations/trello/connect", "application/json", strings.NewReader(`{"apiKey":"k"}`))
	if err != nil {
		t.Fatalf("POST connect: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("connect without token status = %d", res.StatusCode)
	}
	var env envelope
	_ = json.NewDecoder(res.Body).Decode(&env)
	if env.Message != "Validation failed" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestUnknownIntegration(t *testing.T) {
	ts, _ := newTestServer(t)
	res, err := http.Get(ts.URL + "/v1/integrations/jira/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}

func TestMockedProviderListings(t *testing.T) {
	ts, _ := newTestServer(t)

	env := getEnvelope(t, ts.URL+"/v1/integrations/trello/boards")
	if boards, _ := env.Data.([]any); len(boards) == 0 {
		t.Fatalf("expected mock boards")
	}
	env = getEnvelope(t, ts.URL+"/v1/integrations/calendar/events")
	if events, _ := env.Data.([]any); len(events) != 3 {
		t.Fatalf("expected 3 mock events")
	}
	env = getEnvelope(t, ts.URL+"/v1/integrations/slack/channels")
	if channels, _ := env.Data.([]any); len(channels) != 3 {
		t.Fatalf("expected 3 mock channels")
	}
}

func TestSettingsRoutes(t *testing.T) {
	ts, _ := newTestServer(t)

	env := getEnvelope(t, ts.URL+"/v1/settings")
	data, _ := env.Data.(map[string]any)
	if data["theme"] != "dark" {
		t.Fatalf("settings = %+v", data)
	}

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/v1/settings", strings.NewReader(`{"theme":"light"}`))
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT settings: %v", err)
	}
	defer res.Body.Close()
	var updated envelope
	_ = json.NewDecoder(res.Body).Decode(&updated)
	if data, _ := updated.Data.(map[string]any); data["theme"] != "light" {
		t.Fatalf("updated settings = %+v", data)
	}

	resetRes, err := http.Post(ts.URL+"/v1/settings/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST reset: %v", err)
	}
	defer resetRes.Body.Close()
	var reset envelope
	_ = json.NewDecoder(resetRes.Body).Decode(&reset)
	if data, _ := reset.Data.(map[string]any); data["theme"] != "dark" {
		t.Fatalf("reset settings = %+v", data)
	}

	env = getEnvelope(t, ts.URL+"/v1/settings/stats")
	if stats, _ := env.Data.(map[string]any); stats["totalCommands"] != float64(0) {
		t.Fatalf("stats = %+v", env.Data)
	}
}

func TestHistoryRoutes(t *testing.T) {
	ts, srv := newTestServer(t)

	_ = srv.history.SaveConversation(t.Context(), history.Conversation{
		Turns:   []history.TurnRecord{{Role: "user", Content: "add a task"}},
		Actions: []history.ActionRecord{{Type: "create_trello_card", Success: true}},
	})

	res, err := http.Get(ts.URL + "/v1/voice/history?page=1&limit=5")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer res.Body.Close()
	var page paginatedEnvelope
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if page.Pagination.Total != 1 || page.Pagination.Limit != 5 {
		t.Fatalf("pagination = %+v", page.Pagination)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/voice/history", nil)
	delRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE history: %v", err)
	}
	delRes.Body.Close()
	if delRes.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", delRes.StatusCode)
	}

	env := getEnvelope(t, ts.URL+"/v1/voice/history")
	_ = env
	conversations, _, err := srv.history.List(t.Context(), 1, 10, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(conversations) != 0 {
		t.Fatalf("history not cleared")
	}
}

func TestVoiceWebSocketRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/voice/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"type": "voice:start"}); err != nil {
		t.Fatalf("write start: %v", err)
	}

	readMessage := func() map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	ready := readMessage()
	if ready["type"] != "voice:ready" || ready["mode"] != "demo" {
		t.Fatalf("first message = %+v", ready)
	}
	status := readMessage()
	if status["type"] != "voice:status" || status["status"] != "listening" {
		t.Fatalf("second message = %+v", status)
	}

	if err := conn.WriteJSON(map[string]any{"type": "voice:text", "text": "show me my pending tasks"}); err != nil {
		t.Fatalf("write text: %v", err)
	}

	sawResponse := false
	for i := 0; i < 8 && !sawResponse; i++ {
		msg := readMessage()
		if msg["type"] == "voice:response" {
			text, _ := msg["text"].(string)
			if !strings.Contains(text, "pending tasks") {
				t.Fatalf("response = %q", text)
			}
			sawResponse = true
		}
	}
	if !sawResponse {
		t.Fatalf("never received voice:response")
	}
}
