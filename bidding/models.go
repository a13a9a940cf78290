package bidding

import (
	"time"

	"bidflow/auction"
)

// BidStatus reflects a bid's standing in the per-item ledger.
type BidStatus string

const (
	// BidActive marks the single winning-so-far bid of an item.
	BidActive BidStatus = "active"
	// BidOutbid marks a bid displaced by a higher one.
	BidOutbid BidStatus = "outbid"
	// BidCancelled marks a withdrawn bid.
	BidCancelled BidStatus = "cancelled"
	// BidAccepted marks the winning bid after the auction ended.
	BidAccepted BidStatus = "accepted"
)

// Bid mirrors the bids table. Amounts are integer minor currency units.
type Bid struct {
	ID        string
	ItemID    string
	AuctionID string
	BidderID  string
	Amount    int64
	Status    BidStatus
	// Seq is assigned monotonically per item under the item lock and breaks
	// amount ties deterministically.
	Seq        int
	ReserveMet bool
	PlacedAt   time.Time
}

// ItemView is the catalog slice the validator needs.
type ItemView struct {
	ID            string
	AuctionID     string
	ListerID      string
	StartingPrice int64
	ReservePrice  *int64
}

// AuctionView is the auction slice read alongside the item during placement.
type AuctionView struct {
	ID              string
	Status          auction.Status
	ClosesAt        time.Time
	AutoExtend      bool
	ExtendThreshold time.Duration
	ExtendBy        time.Duration
	ExtensionCount  int
	MaxExtensions   int
}

// Rules parameterizes bid admission.
type Rules struct {
	// MinIncrement is the least amount a new bid must exceed the current
	// active bid by, in minor units.
	MinIncrement int64
	// MaxAmount rejects absurd submissions outright.
	MaxAmount int64
	// RejectBelowReserve switches reserve handling from admit-and-flag to
	// rejection at admission time.
	RejectBelowReserve bool
	// WithdrawProtection blocks withdrawal of the active bid when the
	// auction closes within this window.
	WithdrawProtection time.Duration
}

// PlacedBid is the result of a successful placement.
type PlacedBid struct {
	Bid Bid
	// Outbid carries the previously active bid that was displaced, if any.
	Outbid *Bid
	// Extended reports an anti-snipe push of the close time.
	Extended    bool
	NewClosesAt time.Time
}

// WithdrawResult reports a withdrawal and the bid restored in its place.
type WithdrawResult struct {
	Bid      Bid
	Restored *Bid
}

// ItemState is the read-only projection of an item's ledger.
type ItemState struct {
	ItemID        string
	AuctionID     string
	AuctionStatus auction.Status
	Active        *Bid
	BidCount      int
	ClosesAt      time.Time
	// TimeRemaining is zero once the close time has passed or the auction
	// never went live.
	TimeRemaining time.Duration
}
