package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bidflow/fault"
)

var (
	// ErrNotFound is returned when no auction row exists for the identifier.
	ErrNotFound = fault.New(fault.KindNotFound, "auction: not found")
)

// LifecycleRepository defines the data access the lifecycle service needs.
// Every method runs inside the caller's transaction.
type LifecycleRepository interface {
	LockAuction(ctx context.Context, tx pgx.Tx, auctionID string) (Snapshot, error)
	CountItems(ctx context.Context, tx pgx.Tx, auctionID string) (int, error)
	SetStatus(ctx context.Context, tx pgx.Tx, auctionID string, next Status, actorID string) error
	MarkLive(ctx context.Context, tx pgx.Tx, auctionID string, opensAt time.Time) error
	PushClose(ctx context.Context, tx pgx.Tx, auctionID string, newClose time.Time) error
	EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Repository is the PostgreSQL-backed lifecycle repository.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// LockAuction takes the per-auction exclusive lock and returns a snapshot of
// the fields lifecycle decisions depend on. All start/extend/end calls for
// one auction serialize here.
func (r *Repository) LockAuction(ctx context.Context, tx pgx.Tx, auctionID string) (Snapshot, error) {
	const lockSQL = `
		SELECT id, status::text, closes_at, extension_count, max_extensions
		FROM auctions
		WHERE id = $1
		FOR UPDATE
	`
	var snap Snapshot
	if err := tx.QueryRow(ctx, lockSQL, auctionID).
		Scan(&snap.ID, &snap.Status, &snap.ClosesAt, &snap.ExtensionCount, &snap.MaxExtensions); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("auction: lock: %w", err)
	}
	return snap, nil
}

func (r *Repository) CountItems(ctx context.Context, tx pgx.Tx, auctionID string) (int, error) {
	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM items WHERE auction_id=$1`, auctionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("auction: count items: %w", err)
	}
	return n, nil
}

func (r *Repository) SetStatus(ctx context.Context, tx pgx.Tx, auctionID string, next Status, actorID string) error {
	var actor any
	if actorID != "" {
		actor = actorID
	}
	if _, err := tx.Exec(ctx, `
        UPDATE auctions
        SET status=$1::auction_status,
            status_updated_by=$2::uuid,
            updated_at=get_tx_timestamp()
        WHERE id=$3
    `, next, actor, auctionID); err != nil {
		return fmt.Errorf("auction: update status: %w", err)
	}
	return nil
}

func (r *Repository) MarkLive(ctx context.Context, tx pgx.Tx, auctionID string, opensAt time.Time) error {
	if _, err := tx.Exec(ctx, `
        UPDATE auctions
        SET status='live',
            opens_at=COALESCE(opens_at, $1),
            updated_at=get_tx_timestamp()
        WHERE id=$2
    `, opensAt, auctionID); err != nil {
		return fmt.Errorf("auction: mark live: %w", err)
	}
	return nil
}

func (r *Repository) PushClose(ctx context.Context, tx pgx.Tx, auctionID string, newClose time.Time) error {
	if _, err := tx.Exec(ctx, `
        UPDATE auctions
        SET closes_at=$1,
            extension_count=extension_count+1,
            updated_at=get_tx_timestamp()
        WHERE id=$2
    `, newClose, auctionID); err != nil {
		return fmt.Errorf("auction: push close: %w", err)
	}
	return nil
}

func (r *Repository) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	return enqueueOutbox(ctx, tx, topic, payload)
}

func enqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("auction: marshal outbox payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("auction: enqueue outbox: %w", err)
	}
	return nil
}
