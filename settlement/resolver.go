package settlement

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Resolver computes auction closure results. ResolveAuctionTx is designed to
// be invoked inside the caller's transaction so the surrounding auction row
// lock serializes it against concurrent lifecycle operations.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// itemBid is the per-item scan row: the current active bid, if any.
type itemBid struct {
	ItemID     string
	BidID      *string
	BidderID   *string
	Amount     *int64
	ReserveMet *bool
}

// ResolveAuctionTx scans every item of the auction, accepts the winning bids
// whose reserve was met, and returns the closure summary. Bids below reserve
// stay ACTIVE-turned-unsold: their items simply have no winner.
func (r *Resolver) ResolveAuctionTx(ctx context.Context, tx pgx.Tx, auctionID string) (Summary, error) {
	var (
		feeBps     int
		feeMinimum int64
	)
	if err := tx.QueryRow(ctx, `SELECT fee_bps, fee_minimum FROM auctions WHERE id=$1`, auctionID).
		Scan(&feeBps, &feeMinimum); err != nil {
		return Summary{}, fmt.Errorf("settlement: load fee config: %w", err)
	}

	// Closing joins the per-item lock domain: any in-flight ledger write
	// drains before the scan, and later ones serialize behind this
	// transaction and re-read the ended auction. Ordered to match the
	// single-item lockers.
	if _, err := tx.Exec(ctx, `SELECT id FROM items WHERE auction_id = $1 ORDER BY id FOR UPDATE`, auctionID); err != nil {
		return Summary{}, fmt.Errorf("settlement: lock items: %w", err)
	}

	const scanSQL = `
		SELECT i.id, b.id, b.bidder_id, b.amount, b.reserve_met
		FROM items i
		LEFT JOIN bids b ON b.item_id = i.id AND b.status = 'active'
		WHERE i.auction_id = $1
		ORDER BY i.id
	`
	rows, err := tx.Query(ctx, scanSQL, auctionID)
	if err != nil {
		return Summary{}, fmt.Errorf("settlement: scan items: %w", err)
	}
	defer rows.Close()

	scanned := make([]itemBid, 0, 16)
	for rows.Next() {
		var ib itemBid
		if err := rows.Scan(&ib.ItemID, &ib.BidID, &ib.BidderID, &ib.Amount, &ib.ReserveMet); err != nil {
			return Summary{}, fmt.Errorf("settlement: scan item row: %w", err)
		}
		scanned = append(scanned, ib)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("settlement: iterate items: %w", err)
	}
	rows.Close()

	summary := buildSummary(auctionID, scanned, feeBps, feeMinimum)

	for _, w := range summary.Winners {
		tag, err := tx.Exec(ctx, `UPDATE bids SET status='accepted' WHERE id=$1 AND status='active'`, w.BidID)
		if err != nil {
			return Summary{}, fmt.Errorf("settlement: accept bid %s: %w", w.BidID, err)
		}
		if tag.RowsAffected() != 1 {
			return Summary{}, fmt.Errorf("settlement: bid %s no longer active", w.BidID)
		}
	}

	return summary, nil
}

// buildSummary picks winners and computes fees. Pure; the resolver calls it
// after scanning so closure math is testable without a database.
func buildSummary(auctionID string, scanned []itemBid, feeBps int, feeMinimum int64) Summary {
	summary := Summary{AuctionID: auctionID, Winners: []Winner{}}

	for _, ib := range scanned {
		if ib.BidID == nil {
			continue // no active bid, item unsold
		}
		if ib.ReserveMet == nil || !*ib.ReserveMet {
			continue // reserve unmet, no winner for this item
		}
		summary.Winners = append(summary.Winners, Winner{
			ItemID:   ib.ItemID,
			BidID:    *ib.BidID,
			WinnerID: *ib.BidderID,
			Hammer:   *ib.Amount,
			FeeShare: feeFor(*ib.Amount, feeBps),
		})
		summary.TotalRevenue += *ib.Amount
	}

	summary.PlatformFee = platformFee(summary.TotalRevenue, feeBps, feeMinimum)
	summary.NetRevenue = summary.TotalRevenue - summary.PlatformFee
	return summary
}

// feeFor computes the percentage fee on a single amount, in minor units.
// Fee rates are integer basis points so the arithmetic never leaves int64.
func feeFor(amount int64, feeBps int) int64 {
	return amount * int64(feeBps) / 10000
}

// platformFee applies the minimum-fee floor. An auction that sold nothing
// owes nothing; the minimum only floors a real settlement.
func platformFee(totalRevenue int64, feeBps int, feeMinimum int64) int64 {
	if totalRevenue == 0 {
		return 0
	}
	fee := feeFor(totalRevenue, feeBps)
	if fee < feeMinimum {
		return feeMinimum
	}
	return fee
}
