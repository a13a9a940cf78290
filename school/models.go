package school

import "time"

// Profile captures the subset of school data exposed via the public API layer.
type Profile struct {
	ID        string
	Name      string
	District  string
	Verified  bool
	CreatedAt time.Time
}
