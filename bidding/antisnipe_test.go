package bidding

import (
	"testing"
	"time"
)

func snipeAuction() AuctionView {
	return AuctionView{
		ID:              "auc-1",
		ClosesAt:        testNow.Add(time.Minute),
		AutoExtend:      true,
		ExtendThreshold: 2 * time.Minute,
		ExtendBy:        10 * time.Minute,
	}
}

func TestExtendOnLateBid_InsideThreshold(t *testing.T) {
	auc := snipeAuction()

	ext, ok := ExtendOnLateBid(testNow, auc)
	if !ok {
		t.Fatal("bid one minute before close with a two minute threshold should extend")
	}
	want := auc.ClosesAt.Add(10 * time.Minute)
	if !ext.NewClosesAt.Equal(want) {
		t.Fatalf("expected close pushed to %v, got %v", want, ext.NewClosesAt)
	}
	if ext.Count != 1 {
		t.Fatalf("expected extension count 1, got %d", ext.Count)
	}
}

func TestExtendOnLateBid_OutsideThreshold(t *testing.T) {
	auc := snipeAuction()
	auc.ClosesAt = testNow.Add(30 * time.Minute)

	if _, ok := ExtendOnLateBid(testNow, auc); ok {
		t.Fatal("bid half an hour before close should not extend")
	}
}

func TestExtendOnLateBid_ExactlyAtThreshold(t *testing.T) {
	auc := snipeAuction()
	auc.ClosesAt = testNow.Add(auc.ExtendThreshold)

	if _, ok := ExtendOnLateBid(testNow, auc); !ok {
		t.Fatal("bid exactly at the threshold boundary should extend")
	}
}

func TestExtendOnLateBid_Disabled(t *testing.T) {
	auc := snipeAuction()
	auc.AutoExtend = false

	if _, ok := ExtendOnLateBid(testNow, auc); ok {
		t.Fatal("auction without auto extend should never push its close")
	}
}

func TestExtendOnLateBid_BudgetExhausted(t *testing.T) {
	auc := snipeAuction()
	auc.MaxExtensions = 3
	auc.ExtensionCount = 3

	if _, ok := ExtendOnLateBid(testNow, auc); ok {
		t.Fatal("exhausted extension budget should stop pushing the close")
	}

	auc.ExtensionCount = 2
	ext, ok := ExtendOnLateBid(testNow, auc)
	if !ok {
		t.Fatal("one extension left in the budget should still push")
	}
	if ext.Count != 3 {
		t.Fatalf("expected count 3, got %d", ext.Count)
	}
}

func TestExtendOnLateBid_UnboundedBudget(t *testing.T) {
	auc := snipeAuction()
	auc.MaxExtensions = 0
	auc.ExtensionCount = 40

	if _, ok := ExtendOnLateBid(testNow, auc); !ok {
		t.Fatal("zero max extensions means unbounded pushes")
	}
}
