package actors

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"bidflow/bidding"
	"bidflow/fault"
	"bidflow/outbox"
)

// Bidder repeatedly reads an item's state and tries to beat the active bid
// by a random number of increments. Rejections are expected under load and
// only unexpected error kinds propagate.
func Bidder(ctx context.Context, ledger *bidding.Ledger, itemID, bidderID string, increment int64, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		state, err := ledger.State(ctx, itemID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		amount := int64(1000)
		if state.Active != nil {
			amount = state.Active.Amount + increment*int64(1+rand.Intn(3))
		}

		if _, err := ledger.PlaceBid(ctx, itemID, bidderID, amount); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !tolerable(err) {
				return err
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(40)) * time.Millisecond)
	}
}

// Withdrawer places a bid and then tries to pull it back, exercising the
// restore path and the protection window rejection.
func Withdrawer(ctx context.Context, ledger *bidding.Ledger, itemID, bidderID string, increment int64, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		state, err := ledger.State(ctx, itemID)
		if err != nil {
			time.Sleep(80 * time.Millisecond)
			continue
		}
		amount := int64(1000)
		if state.Active != nil {
			amount = state.Active.Amount + increment
		}
		placed, err := ledger.PlaceBid(ctx, itemID, bidderID, amount)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !tolerable(err) {
				return err
			}
			time.Sleep(60 * time.Millisecond)
			continue
		}

		time.Sleep(time.Duration(20+rand.Intn(60)) * time.Millisecond)
		if _, err := ledger.WithdrawBid(ctx, placed.Bid.ID, bidderID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !tolerable(err) {
				return err
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(70)) * time.Millisecond)
	}
}

// EndFunc adapts a lifecycle close call to the actor loop.
type EndFunc func(ctx context.Context) error

// Closer invokes the close operation repeatedly once the deadline passes.
// Replays must come back clean instead of erroring or double-settling.
func Closer(ctx context.Context, end EndFunc, after time.Time, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if time.Now().After(after) {
			if err := end(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if !tolerable(err) {
					return err
				}
			}
		}
		time.Sleep(time.Duration(100+rand.Intn(200)) * time.Millisecond)
	}
}

// OutboxDrainer runs the production worker drain in a loop.
func OutboxDrainer(ctx context.Context, worker *outbox.Worker, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		// drains race with chaos connection kills; keep going on error
		_, _ = worker.DrainOnce(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}

// Reader polls item history and state, keeping read traffic mixed in with
// the writers.
func Reader(ctx context.Context, ledger *bidding.Ledger, pool *pgxpool.Pool, itemID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = ledger.History(ctx, itemID)
		_, _ = ledger.State(ctx, itemID)
		var n int
		_ = pool.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE item_id=$1`, itemID).Scan(&n)
		time.Sleep(time.Duration(40+rand.Intn(80)) * time.Millisecond)
	}
}

// tolerable reports whether the error is a normal rejection under
// contention, or connection churn from the chaos actor, rather than a bug.
func tolerable(err error) bool {
	switch fault.KindOf(err) {
	case fault.KindValidation, fault.KindState, fault.KindConflict,
		fault.KindAuthorization, fault.KindNotFound:
		return true
	}
	var kinded *fault.Error
	return !errors.As(err, &kinded)
}
