// Package auditpg persists auth audit events to PostgreSQL. The sink is
// INSERT-only: events are immutable once written, and a write failure is
// logged and swallowed so the auth flow that produced the event is never
// affected.
package auditpg

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/contractdesk/authcore"
)

//go:embed migrations/*.sql
var migrations embed.FS

const insertEvent = `
INSERT INTO auth_events (
	id, occurred_at, event_type, user_id, session_id,
	ip, user_agent, device, success, error_code, metadata
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO NOTHING`

// Sink writes audit events into the auth_events table.
type Sink struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSink wraps an open database handle. The caller owns the handle's
// lifecycle; Close it after the engine that feeds the sink is closed.
func NewSink(db *sql.DB) *Sink {
	return &Sink{db: db, timeout: 5 * time.Second}
}

// Emit implements [authcore.AuditSink].
func (s *Sink) Emit(ctx context.Context, event authcore.AuditEvent) {
	if s == nil || s.db == nil {
		return
	}

	var metadata any
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err == nil {
			metadata = data
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, insertEvent,
		event.ID,
		event.Timestamp,
		event.EventType,
		nullable(event.UserID),
		nullable(event.SessionID),
		nullable(event.IP),
		nullable(event.UserAgent),
		nullable(event.Device),
		event.Success,
		nullable(event.Error),
		metadata,
	)
	if err != nil {
		log.Printf("auditpg: insert failed for %s: %v", event.EventType, err)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Open connects to PostgreSQL with a pool sized for a steady trickle of
// audit inserts, and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("auditpg: open: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("auditpg: ping: %w", err)
	}

	return db, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("auditpg: dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("auditpg: migrate: %w", err)
	}
	return nil
}
