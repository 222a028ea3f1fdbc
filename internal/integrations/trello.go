package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/voicedeskhq/voicedesk/internal/logging"
)

const trelloBaseURL = "https://api.trello.com/1"

// Card is a normalized Trello card.
type Card struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Due         string `json:"due,omitempty"`
	URL         string `json:"url,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// Board is a normalized Trello board.
type Board struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// BoardList is a list (column) on a Trello board.
type BoardList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CardRequest is the input for card creation.
type CardRequest struct {
	Name        string
	Description string
	Due         string
	Labels      []string
}

type TrelloConfig struct {
	APIKey  string
	Token   string
	BoardID string
	ListID  string
}

func (c TrelloConfig) configured() bool {
	return c.APIKey != "" && c.Token != ""
}

type trelloBackend interface {
	createCard(ctx context.Context, listID string, req CardRequest) (Card, error)
	cards(ctx context.Context, boardID, listID string, limit int) ([]Card, error)
	boards(ctx context.Context) ([]Board, error)
	lists(ctx context.Context, boardID string) ([]BoardList, error)
}

// Trello is the task-board capability provider.
type Trello struct {
	mu  sync.RWMutex
	cfg TrelloConfig
	be  trelloBackend
}

func NewTrello(cfg TrelloConfig) *Trello {
	t := &Trello{cfg: cfg}
	t.be = pickTrelloBackend(cfg)
	if !cfg.configured() {
		logging.Warn(logging.Fields{"provider": t.Name()}, "trello not configured, using mock data")
	}
	return t
}

func pickTrelloBackend(cfg TrelloConfig) trelloBackend {
	if cfg.configured() {
		return &trelloLive{cfg: cfg, http: newHTTPClient()}
	}
	return &trelloMock{}
}

func (t *Trello) Name() string { return "trello" }

func (t *Trello) IsConfigured() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg.configured()
}

func (t *Trello) Status(ctx context.Context) Status {
	if !t.IsConfigured() {
		return Status{Configured: false, Connected: false, Message: "Trello credentials not configured"}
	}
	if _, err := t.Boards(ctx); err != nil {
		return Status{Configured: true, Connected: false, Message: err.Error()}
	}
	return Status{Configured: true, Connected: true, LastSync: nowUTC()}
}

// Connect merges new credentials and verifies them with a board listing.
func (t *Trello) Connect(ctx context.Context, credentials map[string]string) error {
	t.mu.Lock()
	if v := credentials["apiKey"]; v != "" {
		t.cfg.APIKey = v
	}
	if v := credentials["token"]; v != "" {
		t.cfg.Token = v
	}
	if v := credentials["boardId"]; v != "" {
		t.cfg.BoardID = v
	}
	if v := credentials["listId"]; v != "" {
		t.cfg.ListID = v
	}
	t.be = pickTrelloBackend(t.cfg)
	t.mu.Unlock()

	if _, err := t.Boards(ctx); err != nil {
		return err
	}
	logging.Info(logging.Fields{"provider": t.Name()}, "trello connected")
	return nil
}

func (t *Trello) Disconnect(_ context.Context) error {
	t.mu.Lock()
	t.cfg.APIKey = ""
	t.cfg.Token = ""
	t.be = pickTrelloBackend(t.cfg)
	t.mu.Unlock()
	logging.Info(logging.Fields{"provider": t.Name()}, "trello disconnected")
	return nil
}

func (t *Trello) Test(ctx context.Context) TestResult {
	if !t.IsConfigured() {
		return TestResult{Success: false, Message: "Trello not configured"}
	}
	boards, err := t.Boards(ctx)
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}
	return TestResult{Success: true, Message: fmt.Sprintf("Connected! Found %d boards.", len(boards))}
}

// CreateCard creates a card on the configured list.
func (t *Trello) CreateCard(ctx context.Context, req CardRequest) (Card, error) {
	if req.Name == "" {
		return Card{}, fmt.Errorf("card name is required")
	}
	t.mu.RLock()
	be, listID := t.be, t.cfg.ListID
	configured := t.cfg.configured()
	t.mu.RUnlock()
	if configured && listID == "" {
		return Card{}, fmt.Errorf("list ID not configured")
	}
	return be.createCard(ctx, listID, req)
}

// Cards returns up to limit open cards from the configured list or board.
func (t *Trello) Cards(ctx context.Context, limit int) ([]Card, error) {
	if limit <= 0 {
		limit = 10
	}
	t.mu.RLock()
	be, boardID, listID := t.be, t.cfg.BoardID, t.cfg.ListID
	t.mu.RUnlock()
	return be.cards(ctx, boardID, listID, limit)
}

func (t *Trello) Boards(ctx context.Context) ([]Board, error) {
	t.mu.RLock()
	be := t.be
	t.mu.RUnlock()
	return be.boards(ctx)
}

func (t *Trello) Lists(ctx context.Context, boardID string) ([]BoardList, error) {
	t.mu.RLock()
	be := t.be
	if boardID == "" {
		boardID = t.cfg.BoardID
	}
	t.mu.RUnlock()
	if boardID == "" {
		return nil, fmt.Errorf("board ID not specified")
	}
	return be.lists(ctx, boardID)
}

// --- live backend ---

type trelloLive struct {
	cfg  TrelloConfig
	http *http.Client
}

func (l *trelloLive) request(ctx context.Context, method, endpoint string, form url.Values, out any) error {
	q := url.Values{}
	q.Set("key", l.cfg.APIKey)
	q.Set("token", l.cfg.Token)
	var body io.Reader
	if method == http.MethodGet {
		for k, vs := range form {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
	} else if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, trelloBaseURL+endpoint+"?"+q.Encode(), body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	res, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("trello request: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("trello response: %w", err)
	}
	if res.StatusCode >= 400 {
		// Trello returns plain-text error bodies; surface them verbatim.
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = res.Status
		}
		return fmt.Errorf("%s", msg)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (l *trelloLive) createCard(ctx context.Context, listID string, req CardRequest) (Card, error) {
	form := url.Values{}
	form.Set("name", req.Name)
	form.Set("desc", req.Description)
	form.Set("idList", listID)
	if req.Due != "" {
		form.Set("due", req.Due)
	}
	if len(req.Labels) > 0 {
		form.Set("idLabels", strings.Join(req.Labels, ","))
	}

	var raw struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		URL      string `json:"url"`
		ShortURL string `json:"shortUrl"`
	}
	if err := l.request(ctx, http.MethodPost, "/cards", form, &raw); err != nil {
		return Card{}, err
	}
	u := raw.URL
	if u == "" {
		u = raw.ShortURL
	}
	logging.Info(logging.Fields{"card_id": raw.ID, "name": raw.Name}, "trello card created")
	return Card{ID: raw.ID, Title: raw.Name, URL: u}, nil
}

func (l *trelloLive) cards(ctx context.Context, boardID, listID string, limit int) ([]Card, error) {
	endpoint := ""
	switch {
	case listID != "":
		endpoint = "/lists/" + listID + "/cards"
	case boardID != "":
		endpoint = "/boards/" + boardID + "/cards"
	default:
		return nil, fmt.Errorf("no list or board configured")
	}

	var raw []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Desc string `json:"desc"`
		Due  string `json:"due"`
		URL  string `json:"url"`
	}
	if err := l.request(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) > limit {
		raw = raw[:limit]
	}
	cards := make([]Card, 0, len(raw))
	for _, c := range raw {
		cards = append(cards, Card{ID: c.ID, Title: c.Name, Description: c.Desc, Due: c.Due, URL: c.URL})
	}
	return cards, nil
}

func (l *trelloLive) boards(ctx context.Context) ([]Board, error) {
	var raw []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := l.request(ctx, http.MethodGet, "/members/me/boards", nil, &raw); err != nil {
		return nil, err
	}
	boards := make([]Board, 0, len(raw))
	for _, b := range raw {
		boards = append(boards, Board{ID: b.ID, Name: b.Name, URL: b.URL})
	}
	return boards, nil
}

func (l *trelloLive) lists(ctx context.Context, boardID string) ([]BoardList, error) {
	var raw []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := l.request(ctx, http.MethodGet, "/boards/"+boardID+"/lists", nil, &raw); err != nil {
		return nil, err
	}
	lists := make([]BoardList, 0, len(raw))
	for _, bl := range raw {
		lists = append(lists, BoardList{ID: bl.ID, Name: bl.Name})
	}
	return lists, nil
}

// --- mock backend ---

type trelloMock struct {
	seq atomic.Int64
}

func (m *trelloMock) createCard(_ context.Context, _ string, req CardRequest) (Card, error) {
	id := fmt.Sprintf("card_%d", m.seq.Add(1))
	return Card{
		ID:    id,
		Title: req.Name,
		URL:   "https://trello.com/c/example",
	}, nil
}

func (m *trelloMock) cards(_ context.Context, _, _ string, limit int) ([]Card, error) {
	cards := []Card{
		{ID: "card1", Title: "Buy groceries"},
		{ID: "card2", Title: "Call John", Due: nowUTC().Format("2006-01-02")},
		{ID: "card3", Title: "Review documents"},
	}
	if len(cards) > limit {
		cards = cards[:limit]
	}
	return cards, nil
}

func (m *trelloMock) boards(_ context.Context) ([]Board, error) {
	return []Board{
		{ID: "board1", Name: "My Tasks", URL: "https://trello.com/b/example1"},
		{ID: "board2", Name: "Project Board", URL: "https://trello.com/b/example2"},
	}, nil
}

func (m *trelloMock) lists(_ context.Context, _ string) ([]BoardList, error) {
	return []BoardList{
		{ID: "list1", Name: "To Do"},
		{ID: "list2", Name: "In Progress"},
		{ID: "list3", Name: "Done"},
	}, nil
}
