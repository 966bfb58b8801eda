package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const createMessagesTable = `CREATE TABLE IF NOT EXISTS hub_messages (
	id         BIGSERIAL PRIMARY KEY,
	topic      TEXT NOT NULL,
	conn_id    TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL DEFAULT '',
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

const insertMessage = `INSERT INTO hub_messages (topic, conn_id, user_id, payload, created_at) VALUES ($1, $2, $3, $4, $5)`

// PostgresSink inserts one row per record.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink wraps db, which the sink closes on Close.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// OpenPostgres connects with dsn and creates the table if missing.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresSink(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createMessagesTable); err != nil {
		return fmt.Errorf("create hub_messages: %w", err)
	}
	return nil
}

func (s *PostgresSink) Save(ctx context.Context, rec Record) error {
	payload := []byte(rec.Data)
	if len(payload) == 0 {
		payload = []byte("null")
	}
	_, err := s.db.ExecContext(ctx, insertMessage,
		rec.Topic, rec.ConnectionID, rec.UserID, payload, rec.CreatedAt())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}
