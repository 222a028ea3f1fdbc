package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicedeskhq/voicedesk/internal/reliability"
)

// PostgresStore persists conversation history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	// The database may still be coming up when the server starts.
	for attempt := 0; ; attempt++ {
		if err := pool.Ping(ctx); err == nil {
			break
		} else if attempt >= 4 {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(reliability.Backoff(attempt, 200*time.Millisecond, 2*time.Second)):
		}
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			date TIMESTAMPTZ NOT NULL DEFAULT now(),
			duration_ms BIGINT NOT NULL DEFAULT 0,
			messages JSONB NOT NULL DEFAULT '[]',
			actions JSONB NOT NULL DEFAULT '[]'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_date ON conversations (date DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveConversation(ctx context.Context, conv Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Date.IsZero() {
		conv.Date = time.Now().UTC()
	}
	conv = redactConversation(conv)

	turns, err := json.Marshal(conv.Turns)
	if err != nil {
		return fmt.Errorf("encode turns: %w", err)
	}
	actions, err := json.Marshal(conv.Actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversations (id, date, duration_ms, messages, actions)
		 VALUES ($1, $2, $3, $4, $5)`,
		conv.ID,
		conv.Date,
		conv.Duration.Milliseconds(),
		turns,
		actions,
	)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, page, limit int, actionType string) ([]Conversation, Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	filter := ""
	args := []any{}
	if actionType != "" {
		filter = `WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(actions) AS a
			WHERE a->>'type' LIKE '%' || $1 || '%'
		)`
		args = append(args, actionType)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM conversations `+filter, args...).Scan(&total); err != nil {
		return nil, Pagination{}, fmt.Errorf("count conversations: %w", err)
	}

	offsetArg := len(args) + 1
	limitArg := len(args) + 2
	query := fmt.Sprintf(
		`SELECT id, date, duration_ms, messages, actions
		 FROM conversations %s ORDER BY date DESC OFFSET $%d LIMIT $%d`,
		filter, offsetArg, limitArg,
	)
	args = append(args, (page-1)*limit, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]Conversation, 0, limit)
	for rows.Next() {
		var (
			c          Conversation
			durationMS int64
			turns      []byte
			actions    []byte
		)
		if err := rows.Scan(&c.ID, &c.Date, &durationMS, &turns, &actions); err != nil {
			return nil, Pagination{}, fmt.Errorf("scan conversation row: %w", err)
		}
		c.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal(turns, &c.Turns); err != nil {
			return nil, Pagination{}, fmt.Errorf("decode turns: %w", err)
		}
		if err := json.Unmarshal(actions, &c.Actions); err != nil {
			return nil, Pagination{}, fmt.Errorf("decode actions: %w", err)
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, Pagination{}, fmt.Errorf("iterate conversation rows: %w", err)
	}

	totalPages := (total + limit - 1) / limit
	return conversations, Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
