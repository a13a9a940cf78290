package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bidflow/auction"
	"bidflow/fault"
)

var (
	// ErrItemNotFound is returned when no item row exists for the identifier.
	ErrItemNotFound = fault.New(fault.KindNotFound, "bid: item not found")
	// ErrBidNotFound is returned when no bid row exists for the identifier.
	ErrBidNotFound = fault.New(fault.KindNotFound, "bid: not found")
	// ErrNotBidOwner signals a withdrawal by someone other than the bidder.
	ErrNotBidOwner = fault.New(fault.KindAuthorization, "bid: not owned by requester")
	// ErrAlreadyWithdrawn signals a repeated withdrawal.
	ErrAlreadyWithdrawn = fault.New(fault.KindState, "bid: already withdrawn")
	// ErrBidSettled signals withdrawal of an accepted winning bid.
	ErrBidSettled = fault.New(fault.KindState, "bid: already accepted at close")
	// ErrProtectionWindow blocks withdrawing the active bid right before
	// close, so the highest bid cannot be yanked and resubmitted low.
	ErrProtectionWindow = fault.New(fault.KindState, "bid: active bid locked inside protection window")
)

// Outbox topics emitted by ledger writes.
const (
	TopicBidPlaced    = "bid.placed"
	TopicBidOutbid    = "bid.outbid"
	TopicBidWithdrawn = "bid.withdrawn"
)

// AccountDirectory is the identity collaborator surface the ledger consumes.
type AccountDirectory interface {
	IsAccountActive(ctx context.Context, accountID string) (bool, error)
}

// Ledger owns per-item bid history and the single active bid. Every mutation
// runs under the item's exclusive row lock; items are independent lock
// domains and proceed fully in parallel.
type Ledger struct {
	pool     *pgxpool.Pool
	accounts AccountDirectory
	rules    Rules
	now      func() time.Time
	idGen    func() string
}

func NewLedger(pool *pgxpool.Pool, accounts AccountDirectory, rules Rules) *Ledger {
	return &Ledger{
		pool:     pool,
		accounts: accounts,
		rules:    rules,
		now:      time.Now,
		idGen:    func() string { return uuid.NewString() },
	}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) WithIDGenerator(gen func() string) *Ledger {
	l.idGen = gen
	return l
}

// PlaceBid admits a bid for an item. The current active bid is re-read and
// re-validated under the item lock, so an amount that went stale between the
// caller's read and lock acquisition fails deterministically instead of
// silently overwriting a higher bid.
func (l *Ledger) PlaceBid(ctx context.Context, itemID, bidderID string, amount int64) (PlacedBid, error) {
	// Collaborator lookup happens before the lock; the ledger never blocks
	// on external calls while holding it.
	accountActive, err := l.accounts.IsAccountActive(ctx, bidderID)
	if err != nil {
		return PlacedBid{}, fmt.Errorf("bid: check account: %w", err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return PlacedBid{}, fmt.Errorf("bid: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	item, err := lockItem(ctx, tx, itemID)
	if err != nil {
		return PlacedBid{}, err
	}
	auc, err := loadAuction(ctx, tx, item.AuctionID)
	if err != nil {
		return PlacedBid{}, err
	}
	current, err := currentActiveBid(ctx, tx, itemID)
	if err != nil {
		return PlacedBid{}, err
	}

	now := l.now()
	admission, err := Validate(now, l.rules, auc, item, current, accountActive, bidderID, amount)
	if err != nil {
		return PlacedBid{}, err
	}

	if current != nil {
		tag, err := tx.Exec(ctx, `UPDATE bids SET status='outbid' WHERE id=$1 AND status='active'`, current.ID)
		if err != nil {
			return PlacedBid{}, fault.FromPg(fmt.Errorf("bid: displace active: %w", err), "bid: lost placement race")
		}
		if tag.RowsAffected() != 1 {
			return PlacedBid{}, fault.New(fault.KindConflict, "bid: active bid changed underfoot")
		}
	}

	var seq int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq),0)+1 FROM bids WHERE item_id=$1`, itemID).Scan(&seq); err != nil {
		return PlacedBid{}, fmt.Errorf("bid: next seq: %w", err)
	}

	const insertSQL = `
        INSERT INTO bids (id, item_id, auction_id, bidder_id, amount, status, seq, reserve_met)
        VALUES ($1,$2,$3,$4,$5,'active',$6,$7)
        RETURNING placed_at
    `
	placed := Bid{
		ID:         l.idGen(),
		ItemID:     itemID,
		AuctionID:  item.AuctionID,
		BidderID:   bidderID,
		Amount:     amount,
		Status:     BidActive,
		Seq:        seq,
		ReserveMet: admission.ReserveMet,
	}
	if err := tx.QueryRow(ctx, insertSQL, placed.ID, itemID, item.AuctionID, bidderID, amount, seq, admission.ReserveMet).
		Scan(&placed.PlacedAt); err != nil {
		return PlacedBid{}, fault.FromPg(fmt.Errorf("bid: insert: %w", err), "bid: lost placement race")
	}

	result := PlacedBid{Bid: placed, Outbid: current}

	if ext, ok := ExtendOnLateBid(now, auc); ok {
		// The auction row is not held by the item lock, so bids on sibling
		// items race here. The predicates keep the budget, never pull the
		// close backward, and count only pushes that actually moved it;
		// RETURNING gives the authoritative values for the event.
		const extendSQL = `
            UPDATE auctions
            SET closes_at=$1, extension_count=extension_count+1, updated_at=get_tx_timestamp()
            WHERE id=$2 AND closes_at < $1 AND (max_extensions = 0 OR extension_count < max_extensions)
            RETURNING closes_at, extension_count
        `
		var (
			newClosesAt time.Time
			newCount    int
		)
		err := tx.QueryRow(ctx, extendSQL, ext.NewClosesAt, item.AuctionID).Scan(&newClosesAt, &newCount)
		switch {
		case err == nil:
			if err := enqueueOutbox(ctx, tx, auction.TopicExtended, map[string]any{
				"auction_id": item.AuctionID,
				"closes_at":  newClosesAt.UTC(),
				"extension":  newCount,
				"bid_id":     placed.ID,
			}); err != nil {
				return PlacedBid{}, err
			}
			result.Extended = true
			result.NewClosesAt = newClosesAt
		case errors.Is(err, pgx.ErrNoRows):
			// budget spent, or a sibling bid already pushed the close past ours
		default:
			return PlacedBid{}, fault.FromPg(fmt.Errorf("bid: push close: %w", err), "bid: lost extension race")
		}
	}

	if err := enqueueOutbox(ctx, tx, TopicBidPlaced, map[string]any{
		"bid_id":     placed.ID,
		"item_id":    itemID,
		"auction_id": item.AuctionID,
		"bidder_id":  bidderID,
		"amount":     amount,
	}); err != nil {
		return PlacedBid{}, err
	}
	if current != nil {
		if err := enqueueOutbox(ctx, tx, TopicBidOutbid, map[string]any{
			"bid_id":    current.ID,
			"item_id":   itemID,
			"bidder_id": current.BidderID,
			"outbid_by": placed.ID,
		}); err != nil {
			return PlacedBid{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return PlacedBid{}, fault.FromPg(fmt.Errorf("bid: commit: %w", err), "bid: lost placement race")
	}

	return result, nil
}

// WithdrawBid cancels a bid owned by the requester. Withdrawing the active
// bid restores the highest remaining outbid bid, or leaves the item bidless.
func (l *Ledger) WithdrawBid(ctx context.Context, bidID, requesterID string) (WithdrawResult, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("bid: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Locking the item row, not the bid row, keeps withdrawal in the same
	// lock domain as placement.
	const lockSQL = `
        SELECT b.id, b.item_id, b.auction_id, b.bidder_id, b.amount, b.status::text, b.seq, b.reserve_met, b.placed_at
        FROM bids b
        JOIN items i ON i.id = b.item_id
        WHERE b.id = $1
        FOR UPDATE OF i
    `
	var bid Bid
	if err := tx.QueryRow(ctx, lockSQL, bidID).Scan(
		&bid.ID, &bid.ItemID, &bid.AuctionID, &bid.BidderID, &bid.Amount,
		&bid.Status, &bid.Seq, &bid.ReserveMet, &bid.PlacedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WithdrawResult{}, ErrBidNotFound
		}
		return WithdrawResult{}, fmt.Errorf("bid: lock for withdraw: %w", err)
	}

	if bid.BidderID != requesterID {
		return WithdrawResult{}, ErrNotBidOwner
	}
	switch bid.Status {
	case BidCancelled:
		return WithdrawResult{}, ErrAlreadyWithdrawn
	case BidAccepted:
		return WithdrawResult{}, ErrBidSettled
	}

	auc, err := loadAuction(ctx, tx, bid.AuctionID)
	if err != nil {
		return WithdrawResult{}, err
	}
	if auc.Status != auction.StatusLive {
		return WithdrawResult{}, ErrAuctionNotLive
	}

	wasActive := bid.Status == BidActive
	now := l.now()
	if wasActive && !now.Before(auc.ClosesAt.Add(-l.rules.WithdrawProtection)) {
		return WithdrawResult{}, ErrProtectionWindow
	}

	// The status predicate backstops the item lock: a bid whose status
	// moved since our read (a close accepting it) must never be flipped.
	tag, err := tx.Exec(ctx, `UPDATE bids SET status='cancelled' WHERE id=$1 AND status=$2::bid_status`, bidID, string(bid.Status))
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("bid: cancel: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return WithdrawResult{}, fault.New(fault.KindConflict, "bid: status changed underfoot")
	}
	bid.Status = BidCancelled

	result := WithdrawResult{Bid: bid}

	if wasActive {
		const restoreSQL = `
            UPDATE bids SET status='active'
            WHERE id = (
                SELECT id FROM bids
                WHERE item_id = $1 AND status = 'outbid'
                ORDER BY amount DESC, seq DESC
                LIMIT 1
            )
            RETURNING id, item_id, auction_id, bidder_id, amount, status::text, seq, reserve_met, placed_at
        `
		var restored Bid
		err := tx.QueryRow(ctx, restoreSQL, bid.ItemID).Scan(
			&restored.ID, &restored.ItemID, &restored.AuctionID, &restored.BidderID, &restored.Amount,
			&restored.Status, &restored.Seq, &restored.ReserveMet, &restored.PlacedAt,
		)
		switch {
		case err == nil:
			result.Restored = &restored
		case errors.Is(err, pgx.ErrNoRows):
			// item is bidless again
		default:
			return WithdrawResult{}, fault.FromPg(fmt.Errorf("bid: restore: %w", err), "bid: lost restore race")
		}
	}

	payload := map[string]any{
		"bid_id":    bid.ID,
		"item_id":   bid.ItemID,
		"bidder_id": bid.BidderID,
	}
	if result.Restored != nil {
		payload["restored_bid_id"] = result.Restored.ID
	}
	if err := enqueueOutbox(ctx, tx, TopicBidWithdrawn, payload); err != nil {
		return WithdrawResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return WithdrawResult{}, fault.FromPg(fmt.Errorf("bid: commit withdraw: %w", err), "bid: lost withdraw race")
	}

	return result, nil
}

func lockItem(ctx context.Context, tx pgx.Tx, itemID string) (ItemView, error) {
	const lockSQL = `
        SELECT id, auction_id, lister_id, starting_price, reserve_price
        FROM items
        WHERE id = $1
        FOR UPDATE
    `
	var item ItemView
	if err := tx.QueryRow(ctx, lockSQL, itemID).Scan(
		&item.ID, &item.AuctionID, &item.ListerID, &item.StartingPrice, &item.ReservePrice,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemView{}, ErrItemNotFound
		}
		return ItemView{}, fmt.Errorf("bid: lock item: %w", err)
	}
	return item, nil
}

func loadAuction(ctx context.Context, tx pgx.Tx, auctionID string) (AuctionView, error) {
	const query = `
        SELECT id, status::text, closes_at, auto_extend,
               extend_threshold_secs, extend_by_secs, extension_count, max_extensions
        FROM auctions
        WHERE id = $1
    `
	var (
		auc           AuctionView
		closesAt      *time.Time
		thresholdSecs int64
		extendBySecs  int64
	)
	if err := tx.QueryRow(ctx, query, auctionID).Scan(
		&auc.ID, &auc.Status, &closesAt, &auc.AutoExtend,
		&thresholdSecs, &extendBySecs, &auc.ExtensionCount, &auc.MaxExtensions,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuctionView{}, auction.ErrNotFound
		}
		return AuctionView{}, fmt.Errorf("bid: load auction: %w", err)
	}
	if closesAt != nil {
		auc.ClosesAt = *closesAt
	}
	auc.ExtendThreshold = time.Duration(thresholdSecs) * time.Second
	auc.ExtendBy = time.Duration(extendBySecs) * time.Second
	return auc, nil
}

func currentActiveBid(ctx context.Context, tx pgx.Tx, itemID string) (*Bid, error) {
	const query = `
        SELECT id, item_id, auction_id, bidder_id, amount, status::text, seq, reserve_met, placed_at
        FROM bids
        WHERE item_id = $1 AND status = 'active'
    `
	var bid Bid
	err := tx.QueryRow(ctx, query, itemID).Scan(
		&bid.ID, &bid.ItemID, &bid.AuctionID, &bid.BidderID, &bid.Amount,
		&bid.Status, &bid.Seq, &bid.ReserveMet, &bid.PlacedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bid: load active: %w", err)
	}
	return &bid, nil
}

func enqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bid: marshal outbox payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("bid: enqueue outbox: %w", err)
	}
	return nil
}
