package settlement

// Winner is one sold item inside a closure summary.
type Winner struct {
	ItemID   string
	BidID    string
	WinnerID string
	// Hammer is the winning bid amount in minor currency units.
	Hammer int64
	// FeeShare is this item's slice of the platform fee, informational only;
	// the authoritative fee is Summary.PlatformFee.
	FeeShare int64
}

// Summary is the only thing the settlement collaborator ever receives. It
// carries no payment tokens, gateways, or card data.
type Summary struct {
	AuctionID    string
	Winners      []Winner
	TotalRevenue int64
	PlatformFee  int64
	NetRevenue   int64
}
