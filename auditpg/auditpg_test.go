package auditpg

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/contractdesk/authcore"
)

// TestSinkRoundTrip needs a live PostgreSQL. Point AUTHCORE_TEST_PG_DSN
// at a scratch database to run it; it is skipped otherwise.
func TestSinkRoundTrip(t *testing.T) {
	dsn := os.Getenv("AUTHCORE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AUTHCORE_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer db.Close()

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	sink := NewSink(db)
	event := authcore.AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: "signin_success",
		UserID:    "u1",
		SessionID: "s1",
		IP:        "203.0.113.9",
		Success:   true,
		Metadata:  map[string]string{"method": "password"},
	}
	sink.Emit(ctx, event)

	var eventType string
	var success bool
	err = db.QueryRowContext(ctx,
		"SELECT event_type, success FROM auth_events WHERE id = $1", event.ID,
	).Scan(&eventType, &success)
	if err != nil {
		t.Fatalf("event not stored: %v", err)
	}
	if eventType != "signin_success" || !success {
		t.Fatalf("stored row mismatch: %s %v", eventType, success)
	}

	// Emitting the same event twice must not fail or duplicate.
	sink.Emit(ctx, event)
	var n int
	if err := db.QueryRowContext(ctx,
		"SELECT count(*) FROM auth_events WHERE id = $1", event.ID,
	).Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d rows, want 1", n)
	}
}
