package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicedeskhq/voicedesk/internal/logging"
)

const (
	notionBaseURL    = "https://api.notion.com/v1"
	notionAPIVersion = "2022-06-28"
)

// Page is a created Notion page.
type Page struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// PageRequest is the input for page creation.
type PageRequest struct {
	Title   string
	Content string
}

type NotionConfig struct {
	APIKey     string
	DatabaseID string
}

func (c NotionConfig) configured() bool { return c.APIKey != "" }

// Database is a Notion database the integration can file pages into.
type Database struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type notionBackend interface {
	createPage(ctx context.Context, databaseID string, req PageRequest) (Page, error)
	search(ctx context.Context, query string) ([]Page, error)
	databases(ctx context.Context) ([]Database, error)
}

// Notion is the note-taking capability provider.
type Notion struct {
	mu  sync.RWMutex
	cfg NotionConfig
	be  notionBackend
}

func NewNotion(cfg NotionConfig) *Notion {
	n := &Notion{cfg: cfg}
	n.be = pickNotionBackend(cfg)
	if !cfg.configured() {
		logging.Warn(logging.Fields{"provider": n.Name()}, "notion not configured, using mock data")
	}
	return n
}

func pickNotionBackend(cfg NotionConfig) notionBackend {
	if cfg.configured() {
		return &notionLive{cfg: cfg, http: newHTTPClient()}
	}
	return &notionMock{}
}

func (n *Notion) Name() string { return "notion" }

func (n *Notion) IsConfigured() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cfg.configured()
}

func (n *Notion) Status(ctx context.Context) Status {
	if !n.IsConfigured() {
		return Status{Configured: false, Connected: false, Message: "Notion credentials not configured"}
	}
	if _, err := n.Search(ctx, ""); err != nil {
		return Status{Configured: true, Connected: false, Message: err.Error()}
	}
	return Status{Configured: true, Connected: true, LastSync: nowUTC()}
}

func (n *Notion) Connect(ctx context.Context, credentials map[string]string) error {
	n.mu.Lock()
	if v := credentials["apiKey"]; v != "" {
		n.cfg.APIKey = v
	}
	if v := credentials["databaseId"]; v != "" {
		n.cfg.DatabaseID = v
	}
	n.be = pickNotionBackend(n.cfg)
	n.mu.Unlock()

	if _, err := n.Search(ctx, ""); err != nil {
		return err
	}
	logging.Info(logging.Fields{"provider": n.Name()}, "notion connected")
	return nil
}

func (n *Notion) Disconnect(_ context.Context) error {
	n.mu.Lock()
	n.cfg.APIKey = ""
	n.be = pickNotionBackend(n.cfg)
	n.mu.Unlock()
	logging.Info(logging.Fields{"provider": n.Name()}, "notion disconnected")
	return nil
}

func (n *Notion) Test(ctx context.Context) TestResult {
	if !n.IsConfigured() {
		return TestResult{Success: false, Message: "Notion not configured"}
	}
	dbs, err := n.Databases(ctx)
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}
	return TestResult{Success: true, Message: fmt.Sprintf("Connected! Found %d accessible databases.", len(dbs))}
}

// CreatePage files a new page into the configured database. Without a
// database the page lands under the workspace root.
func (n *Notion) CreatePage(ctx context.Context, req PageRequest) (Page, error) {
	if req.Title == "" {
		return Page{}, fmt.Errorf("page title is required")
	}
	n.mu.RLock()
	be, databaseID := n.be, n.cfg.DatabaseID
	n.mu.RUnlock()
	return be.createPage(ctx, databaseID, req)
}

// Databases lists the databases the integration token can reach.
func (n *Notion) Databases(ctx context.Context) ([]Database, error) {
	n.mu.RLock()
	be := n.be
	n.mu.RUnlock()
	return be.databases(ctx)
}

func (n *Notion) Search(ctx context.Context, query string) ([]Page, error) {
	n.mu.RLock()
	be := n.be
	n.mu.RUnlock()
	return be.search(ctx, query)
}

// --- live backend ---

type notionLive struct {
	cfg  NotionConfig
	http *http.Client
}

func (l *notionLive) request(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, notionBaseURL+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)
	req.Header.Set("Notion-Version", notionAPIVersion)
	req.Header.Set("Content-Type", "application/json")

	res, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("notion request: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("notion response: %w", err)
	}
	if res.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s", apiErr.Message)
		}
		return fmt.Errorf("notion API error: %s", res.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (l *notionLive) createPage(ctx context.Context, databaseID string, req PageRequest) (Page, error) {
	parent := map[string]any{"page_id": "root"}
	if databaseID != "" {
		parent = map[string]any{"database_id": databaseID}
	}
	payload := map[string]any{
		"parent": parent,
		"properties": map[string]any{
			"title": map[string]any{
				"title": []map[string]any{
					{"text": map[string]any{"content": req.Title}},
				},
			},
		},
		"children": []map[string]any{
			{
				"object": "block",
				"type":   "paragraph",
				"paragraph": map[string]any{
					"rich_text": []map[string]any{
						{"text": map[string]any{"content": req.Content}},
					},
				},
			},
		},
	}

	var raw struct {
		ID          string `json:"id"`
		URL         string `json:"url"`
		CreatedTime string `json:"created_time"`
	}
	if err := l.request(ctx, http.MethodPost, "/pages", payload, &raw); err != nil {
		return Page{}, err
	}
	logging.Info(logging.Fields{"page_id": raw.ID, "title": req.Title}, "notion page created")
	return Page{ID: raw.ID, Title: req.Title, URL: raw.URL, CreatedAt: raw.CreatedTime}, nil
}

func (l *notionLive) search(ctx context.Context, query string) ([]Page, error) {
	payload := map[string]any{
		"query":  query,
		"filter": map[string]any{"value": "page", "property": "object"},
	}

	var raw struct {
		Results []struct {
			ID         string `json:"id"`
			URL        string `json:"url"`
			Properties map[string]struct {
				Title []struct {
					PlainText string `json:"plain_text"`
				} `json:"title"`
			} `json:"properties"`
		} `json:"results"`
	}
	if err := l.request(ctx, http.MethodPost, "/search", payload, &raw); err != nil {
		return nil, err
	}

	pages := make([]Page, 0, len(raw.Results))
	for _, r := range raw.Results {
		title := "Untitled"
		for _, prop := range r.Properties {
			if len(prop.Title) > 0 && prop.Title[0].PlainText != "" {
				title = prop.Title[0].PlainText
				break
			}
		}
		pages = append(pages, Page{ID: r.ID, Title: title, URL: r.URL})
	}
	return pages, nil
}

func (l *notionLive) databases(ctx context.Context) ([]Database, error) {
	payload := map[string]any{
		"filter": map[string]any{"value": "database", "property": "object"},
	}

	var raw struct {
		Results []struct {
			ID    string `json:"id"`
			Title []struct {
				PlainText string `json:"plain_text"`
			} `json:"title"`
		} `json:"results"`
	}
	if err := l.request(ctx, http.MethodPost, "/search", payload, &raw); err != nil {
		return nil, err
	}

	dbs := make([]Database, 0, len(raw.Results))
	for _, r := range raw.Results {
		title := "Untitled"
		if len(r.Title) > 0 && r.Title[0].PlainText != "" {
			title = r.Title[0].PlainText
		}
		dbs = append(dbs, Database{ID: r.ID, Title: title})
	}
	return dbs, nil
}

// --- mock backend ---

type notionMock struct {
	seq atomic.Int64
}

func (m *notionMock) createPage(_ context.Context, _ string, req PageRequest) (Page, error) {
	id := fmt.Sprintf("page_%d", m.seq.Add(1))
	return Page{
		ID:        id,
		Title:     req.Title,
		URL:       "https://notion.so/" + id,
		CreatedAt: nowUTC().Format(time.RFC3339),
	}, nil
}

func (m *notionMock) search(_ context.Context, _ string) ([]Page, error) {
	return []Page{
		{ID: "page1", Title: "Meeting Notes", URL: "https://notion.so/page1"},
		{ID: "page2", Title: "Ideas", URL: "https://notion.so/page2"},
	}, nil
}

func (m *notionMock) databases(_ context.Context) ([]Database, error) {
	return []Database{
		{ID: "db1", Title: "Notes Database"},
		{ID: "db2", Title: "Tasks Database"},
	}, nil
}
