package bidding

import "time"

// Extension is an anti-snipe push of the auction close time.
type Extension struct {
	NewClosesAt time.Time
	// Count is the auction's extension counter after this push.
	Count int
}

// ExtendOnLateBid decides whether an accepted bid placed at now triggers an
// anti-snipe extension. It runs inside the placement transaction so the new
// close time is visible to the very next admission check. Pure: the caller
// persists the result.
func ExtendOnLateBid(now time.Time, auc AuctionView) (Extension, bool) {
	if !auc.AutoExtend {
		return Extension{}, false
	}
	if auc.MaxExtensions > 0 && auc.ExtensionCount >= auc.MaxExtensions {
		return Extension{}, false
	}
	if now.Before(auc.ClosesAt.Add(-auc.ExtendThreshold)) {
		return Extension{}, false
	}
	return Extension{
		NewClosesAt: auc.ClosesAt.Add(auc.ExtendBy),
		Count:       auc.ExtensionCount + 1,
	}, true
}
