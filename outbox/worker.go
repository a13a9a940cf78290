package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is one notification drained from the outbox table.
type Message struct {
	ID        int64
	Topic     string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// Broadcaster delivers a drained message to whatever transport sits behind
// the engine. Delivery failures are retried up to the worker's attempt cap.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg Message) error
}

// LogBroadcaster writes each message to the structured log. It stands in
// wherever no real transport is wired.
type LogBroadcaster struct {
	Logger *slog.Logger
}

func (b LogBroadcaster) Broadcast(_ context.Context, msg Message) error {
	b.Logger.Info("outbox message",
		slog.Int64("id", msg.ID),
		slog.String("topic", msg.Topic),
		slog.String("payload", string(msg.Payload)),
	)
	return nil
}

// Worker drains pending outbox rows in batches. Rows are claimed with
// SKIP LOCKED so multiple workers never double-deliver, and rows that
// exhaust their attempts stay behind with last_error set for inspection.
type Worker struct {
	pool        *pgxpool.Pool
	broadcaster Broadcaster
	logger      *slog.Logger

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
}

func NewWorker(pool *pgxpool.Pool, broadcaster Broadcaster, logger *slog.Logger, pollInterval time.Duration, batchSize, maxAttempts int) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Worker{
		pool:         pool,
		broadcaster:  broadcaster,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
	}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := w.DrainOnce(ctx); err != nil {
				w.logger.Error("outbox drain failed", slog.String("error", err.Error()))
			} else if n > 0 {
				w.logger.Debug("outbox drained", slog.Int("messages", n))
			}
		}
	}
}

// DrainOnce claims and delivers a single batch. It returns the number of
// messages delivered.
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const claimSQL = `
        SELECT id, topic, payload, attempts, created_at
        FROM outbox
        WHERE processed_at IS NULL AND attempts < $1
        ORDER BY id
        FOR UPDATE SKIP LOCKED
        LIMIT $2
    `
	rows, err := tx.Query(ctx, claimSQL, w.maxAttempts, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("outbox: claim batch: %w", err)
	}
	batch := make([]Message, 0, w.batchSize)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Topic, &msg.Payload, &msg.Attempts, &msg.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("outbox: scan row: %w", err)
		}
		batch = append(batch, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("outbox: iterate batch: %w", err)
	}

	delivered := 0
	for _, msg := range batch {
		if err := w.broadcaster.Broadcast(ctx, msg); err != nil {
			if _, uerr := tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1, last_error=$2 WHERE id=$1`, msg.ID, err.Error()); uerr != nil {
				return delivered, fmt.Errorf("outbox: record failure: %w", uerr)
			}
			if msg.Attempts+1 >= w.maxAttempts {
				w.logger.Warn("outbox message dead-lettered",
					slog.Int64("id", msg.ID),
					slog.String("topic", msg.Topic),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET processed_at=now(), last_error=NULL WHERE id=$1`, msg.ID); err != nil {
			return delivered, fmt.Errorf("outbox: mark processed: %w", err)
		}
		delivered++
	}

	if err := tx.Commit(ctx); err != nil {
		return delivered, fmt.Errorf("outbox: commit batch: %w", err)
	}
	return delivered, nil
}
