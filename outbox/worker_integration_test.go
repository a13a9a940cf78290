package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type flakyBroadcaster struct {
	failID    int64
	failed    bool
	delivered []Message
}

func (b *flakyBroadcaster) Broadcast(_ context.Context, msg Message) error {
	if msg.ID == b.failID && !b.failed {
		b.failed = true
		return errors.New("transport unavailable")
	}
	b.delivered = append(b.delivered, msg)
	return nil
}

// TestWorker_Integration drains a seeded outbox against a real PostgreSQL
// and verifies retry accounting.
func TestWorker_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'outbox')`).Scan(&exists); err != nil {
		t.Fatalf("check outbox table: %v", err)
	}
	if !exists {
		t.Skip("outbox table missing; apply migrations first")
	}

	topic := "itest.notification"
	var msgID int64
	if err := pool.QueryRow(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, '{"k":"v"}'::jsonb) RETURNING id`, topic).Scan(&msgID); err != nil {
		t.Fatalf("seed outbox: %v", err)
	}
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM outbox WHERE id = $1`, msgID)
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broadcaster := &flakyBroadcaster{failID: msgID}
	worker := NewWorker(pool, broadcaster, logger, 50*time.Millisecond, 100, 3)

	// first drain fails our message and bumps its attempts
	if _, err := worker.DrainOnce(ctx); err != nil {
		t.Fatalf("first drain: %v", err)
	}

	var attempts int
	var processedAt *time.Time
	if err := pool.QueryRow(ctx, `SELECT attempts, processed_at FROM outbox WHERE id = $1`, msgID).Scan(&attempts, &processedAt); err != nil {
		t.Fatalf("verify after failure: %v", err)
	}
	if attempts != 1 || processedAt != nil {
		t.Fatalf("expected attempts=1 unprocessed, got attempts=%d processed=%v", attempts, processedAt)
	}

	// second drain succeeds
	if _, err := worker.DrainOnce(ctx); err != nil {
		t.Fatalf("second drain: %v", err)
	}
	var seen bool
	for _, msg := range broadcaster.delivered {
		if msg.ID == msgID && msg.Topic == topic {
			seen = true
		}
	}
	if !seen {
		t.Fatalf("expected message %d delivered, got %+v", msgID, broadcaster.delivered)
	}

	if err := pool.QueryRow(ctx, `SELECT attempts, processed_at FROM outbox WHERE id = $1`, msgID).Scan(&attempts, &processedAt); err != nil {
		t.Fatalf("verify after success: %v", err)
	}
	if processedAt == nil {
		t.Fatal("expected message marked processed")
	}
}
