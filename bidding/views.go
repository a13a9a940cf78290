package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bidflow/auction"
)

// History returns every bid ever placed on the item in placement order,
// including outbid and cancelled bids.
func (l *Ledger) History(ctx context.Context, itemID string) ([]Bid, error) {
	const query = `
        SELECT id, item_id, auction_id, bidder_id, amount, status::text, seq, reserve_met, placed_at
        FROM bids
        WHERE item_id = $1
        ORDER BY seq ASC
    `
	rows, err := l.pool.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("bid: query history: %w", err)
	}
	defer rows.Close()

	var bids []Bid
	for rows.Next() {
		var b Bid
		if err := rows.Scan(
			&b.ID, &b.ItemID, &b.AuctionID, &b.BidderID, &b.Amount,
			&b.Status, &b.Seq, &b.ReserveMet, &b.PlacedAt,
		); err != nil {
			return nil, fmt.Errorf("bid: scan history row: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bid: iterate history: %w", err)
	}
	return bids, nil
}

// State reports the item's current standing: the active bid if any, the bid
// count, and the auction close time as of the read.
func (l *Ledger) State(ctx context.Context, itemID string) (ItemState, error) {
	const query = `
        SELECT i.id, i.auction_id, a.status::text, a.closes_at,
               (SELECT COUNT(*) FROM bids b WHERE b.item_id = i.id)
        FROM items i
        JOIN auctions a ON a.id = i.auction_id
        WHERE i.id = $1
    `
	var (
		state    ItemState
		closesAt *time.Time
	)
	err := l.pool.QueryRow(ctx, query, itemID).Scan(
		&state.ItemID, &state.AuctionID, &state.AuctionStatus, &closesAt, &state.BidCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ItemState{}, ErrItemNotFound
	}
	if err != nil {
		return ItemState{}, fmt.Errorf("bid: load item state: %w", err)
	}
	if closesAt != nil {
		state.ClosesAt = *closesAt
		if remaining := state.ClosesAt.Sub(l.now()); remaining > 0 && state.AuctionStatus == auction.StatusLive {
			state.TimeRemaining = remaining
		}
	}

	const activeQuery = `
        SELECT id, item_id, auction_id, bidder_id, amount, status::text, seq, reserve_met, placed_at
        FROM bids
        WHERE item_id = $1 AND status = 'active'
    `
	var active Bid
	err = l.pool.QueryRow(ctx, activeQuery, itemID).Scan(
		&active.ID, &active.ItemID, &active.AuctionID, &active.BidderID, &active.Amount,
		&active.Status, &active.Seq, &active.ReserveMet, &active.PlacedAt,
	)
	switch {
	case err == nil:
		state.Active = &active
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return ItemState{}, fmt.Errorf("bid: load active for state: %w", err)
	}
	return state, nil
}
