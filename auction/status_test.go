package auction

import "testing"

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusDraft, StatusPendingApproval},
		{StatusDraft, StatusCancelled},
		{StatusPendingApproval, StatusApproved},
		{StatusPendingApproval, StatusRejected},
		{StatusPendingApproval, StatusCancelled},
		{StatusApproved, StatusLive},
		{StatusApproved, StatusCancelled},
		{StatusLive, StatusEnded},
		{StatusLive, StatusCancelled},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to Status }{
		{StatusDraft, StatusLive},
		{StatusDraft, StatusEnded},
		{StatusApproved, StatusEnded},
		{StatusLive, StatusDraft},
		{StatusEnded, StatusLive},
		{StatusEnded, StatusCancelled},
		{StatusCancelled, StatusLive},
		{StatusRejected, StatusApproved},
		{StatusPendingApproval, StatusLive},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusEnded, StatusCancelled, StatusRejected} {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusDraft, StatusPendingApproval, StatusApproved, StatusLive} {
		if IsTerminal(s) {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
	if IsTerminal(Status("bogus")) {
		t.Error("unknown status must not report terminal")
	}
}
