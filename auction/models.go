package auction

import "time"

// Record mirrors the auctions table columns touched by the services.
type Record struct {
	ID              string
	SchoolID        string
	Title           string
	Status          Status
	OpensAt         *time.Time
	ClosesAt        *time.Time
	FeeBps          int
	FeeMinimum      int64
	AutoExtend      bool
	ExtendThreshold time.Duration
	ExtendBy        time.Duration
	ExtensionCount  int
	MaxExtensions   int
	CreatedBy       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Snapshot is the slice of auction state read under the row lock during a
// lifecycle transition.
type Snapshot struct {
	ID             string
	Status         Status
	ClosesAt       *time.Time
	ExtensionCount int
	MaxExtensions  int
}

// CreateParams enumerates the fields required to create a draft auction.
type CreateParams struct {
	SchoolID        string
	Title           string
	OpensAt         *time.Time
	ClosesAt        *time.Time
	FeeBps          int
	FeeMinimum      int64
	AutoExtend      bool
	ExtendThreshold time.Duration
	ExtendBy        time.Duration
	MaxExtensions   int
}

// ListFilters scopes auction listings.
type ListFilters struct {
	SchoolID string
	Page     int
	PageSize int
}
