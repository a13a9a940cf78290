package bidding

import (
	"time"

	"bidflow/auction"
	"bidflow/fault"
)

var (
	// ErrAuctionNotLive signals a bid against an auction outside LIVE.
	ErrAuctionNotLive = fault.New(fault.KindState, "bid: auction is not live")
	// ErrAuctionClosed signals a bid after the close time.
	ErrAuctionClosed = fault.New(fault.KindState, "bid: auction already closed")
	// ErrAccountIneligible signals a suspended or unknown bidder account.
	ErrAccountIneligible = fault.New(fault.KindValidation, "bid: account not eligible to bid")
	// ErrSelfBid signals a lister bidding on their own item.
	ErrSelfBid = fault.New(fault.KindAuthorization, "bid: lister cannot bid on own item")
	// ErrAmountOutOfBounds signals a non-positive or absurdly large amount.
	ErrAmountOutOfBounds = fault.New(fault.KindValidation, "bid: amount out of bounds")
	// ErrBelowMinimum signals an amount under the required minimum. The
	// minimum may have moved since the caller last read the item state.
	ErrBelowMinimum = fault.New(fault.KindValidation, "bid: amount below required minimum")
	// ErrBelowReserve signals a sub-reserve amount when the rules reject
	// such bids at admission time.
	ErrBelowReserve = fault.New(fault.KindValidation, "bid: amount below reserve price")
)

// Admission carries the facts computed during validation that the ledger
// persists with the bid.
type Admission struct {
	// ReserveMet records whether the amount reached the item's reserve.
	// Items without a reserve always have it met.
	ReserveMet bool
	// MinRequired is the minimum the amount was checked against; callers
	// that lost a race can surface it for retry.
	MinRequired int64
}

// Validate applies the admission rules in order: auction live and open,
// account eligible, no self-bid, amount in bounds, amount over the minimum,
// then reserve handling. It never mutates anything.
func Validate(now time.Time, rules Rules, auc AuctionView, item ItemView, current *Bid, accountActive bool, bidderID string, amount int64) (Admission, error) {
	if auc.Status != auction.StatusLive {
		return Admission{}, ErrAuctionNotLive
	}
	if !now.Before(auc.ClosesAt) {
		return Admission{}, ErrAuctionClosed
	}
	if !accountActive {
		return Admission{}, ErrAccountIneligible
	}
	if bidderID == item.ListerID {
		return Admission{}, ErrSelfBid
	}
	if amount <= 0 || amount > rules.MaxAmount {
		return Admission{}, ErrAmountOutOfBounds
	}

	minRequired := item.StartingPrice
	if current != nil {
		if next := current.Amount + rules.MinIncrement; next > minRequired {
			minRequired = next
		}
	}
	if amount < minRequired {
		return Admission{}, ErrBelowMinimum
	}

	admission := Admission{ReserveMet: true, MinRequired: minRequired}
	if item.ReservePrice != nil && amount < *item.ReservePrice {
		if rules.RejectBelowReserve {
			return Admission{}, ErrBelowReserve
		}
		admission.ReserveMet = false
	}

	return admission, nil
}
