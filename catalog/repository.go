package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bidflow/fault"
)

var (
	// ErrNotFound is returned when no item exists for the identifier.
	ErrNotFound = fault.New(fault.KindNotFound, "catalog: item not found")
	// ErrAuctionNotDraft signals an attach against an auction that already
	// left draft. The guard lives in the insert itself so a concurrent
	// submit cannot slip an item into a reviewed catalog.
	ErrAuctionNotDraft = fault.New(fault.KindState, "catalog: auction is not in draft")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Attach inserts the item only while its auction is still in draft. The
// status check and the insert are a single statement, so the draft guard
// holds under concurrent lifecycle transitions.
func (r *Repository) Attach(ctx context.Context, params AttachParams) (Item, error) {
	const insertSQL = `
        INSERT INTO items (auction_id, lister_id, title, description, starting_price, reserve_price)
        SELECT a.id, $2, $3, $4, $5, $6
        FROM auctions a
        WHERE a.id = $1 AND a.status = 'draft'
        RETURNING id, auction_id, lister_id, title, description, starting_price, reserve_price, created_at
    `
	item, err := scanItem(r.pool.QueryRow(ctx, insertSQL,
		params.AuctionID,
		params.ListerID,
		params.Title,
		params.Description,
		params.StartingPrice,
		params.ReservePrice,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrAuctionNotDraft
		}
		return Item{}, fault.FromPg(fmt.Errorf("catalog: attach item: %w", err), "catalog: attach conflict")
	}
	return item, nil
}

func (r *Repository) GetByID(ctx context.Context, itemID string) (Item, error) {
	const query = `
        SELECT id, auction_id, lister_id, title, description, starting_price, reserve_price, created_at
        FROM items
        WHERE id = $1
    `
	item, err := scanItem(r.pool.QueryRow(ctx, query, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("catalog: query item: %w", err)
	}
	return item, nil
}

func (r *Repository) ListByAuction(ctx context.Context, auctionID string) ([]Item, error) {
	const query = `
        SELECT id, auction_id, lister_id, title, description, starting_price, reserve_price, created_at
        FROM items
        WHERE auction_id = $1
        ORDER BY created_at, id
    `
	rows, err := r.pool.Query(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate items: %w", err)
	}
	return items, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(
		&item.ID,
		&item.AuctionID,
		&item.ListerID,
		&item.Title,
		&item.Description,
		&item.StartingPrice,
		&item.ReservePrice,
		&item.CreatedAt,
	)
	return item, err
}
