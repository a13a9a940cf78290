package auction

// Status represents the lifecycle of an auction record.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusLive            Status = "live"
	StatusEnded           Status = "ended"
	StatusCancelled       Status = "cancelled"
	StatusRejected        Status = "rejected"
)

// transitions is the closed set of legal status moves. Cancellation is legal
// from every pre-ended working state; ENDED, CANCELLED and REJECTED are
// terminal.
var transitions = map[Status][]Status{
	StatusDraft:           {StatusPendingApproval, StatusCancelled},
	StatusPendingApproval: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:        {StatusLive, StatusCancelled},
	StatusLive:            {StatusEnded, StatusCancelled},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known status value.
func IsValid(s Status) bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusApproved, StatusLive,
		StatusEnded, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible from s.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0 && IsValid(s)
}
