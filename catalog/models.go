package catalog

import "time"

// Item is a donated lot attached to an auction while it is still in draft.
type Item struct {
	ID            string
	AuctionID     string
	ListerID      string
	Title         string
	Description   string
	StartingPrice int64
	// ReservePrice is nil for items sold without a floor.
	ReservePrice *int64
	CreatedAt    time.Time
}

// AttachParams describes a new item.
type AttachParams struct {
	AuctionID     string
	ListerID      string
	Title         string
	Description   string
	StartingPrice int64
	ReservePrice  *int64
}
