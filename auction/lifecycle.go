package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"bidflow/fault"
	"bidflow/settlement"
)

var (
	// ErrNoItems signals start() on an auction with zero items.
	ErrNoItems = fault.New(fault.KindState, "auction: cannot start with no items")
	// ErrNotLive signals extend()/end() on an auction outside LIVE.
	ErrNotLive = fault.New(fault.KindState, "auction: not live")
)

// Outbox topics emitted by lifecycle transitions.
const (
	TopicStatusChanged = "auction.status_changed"
	TopicStarted       = "auction.started"
	TopicExtended      = "auction.extended"
	TopicEnded         = "auction.ended"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ClosureResolver computes winners inside the closing transaction.
type ClosureResolver interface {
	ResolveAuctionTx(ctx context.Context, tx pgx.Tx, auctionID string) (settlement.Summary, error)
}

// LifecycleService owns the auction state machine. All transitions run under
// the per-auction row lock so concurrent start/extend/end calls cannot
// interleave.
type LifecycleService struct {
	pool     TxBeginner
	repo     LifecycleRepository
	resolver ClosureResolver
	gateway  settlement.Gateway
	logger   *slog.Logger
	now      func() time.Time
}

func NewLifecycleService(pool TxBeginner, repo LifecycleRepository, resolver ClosureResolver, gateway settlement.Gateway, logger *slog.Logger) *LifecycleService {
	if repo == nil {
		repo = NewRepository()
	}
	if gateway == nil {
		gateway = settlement.NoopGateway{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleService{
		pool:     pool,
		repo:     repo,
		resolver: resolver,
		gateway:  gateway,
		logger:   logger,
		now:      time.Now,
	}
}

// CloseResult reports the outcome of End. AlreadyEnded marks the idempotent
// replay path: no bid was touched and the resolver did not re-run.
type CloseResult struct {
	AlreadyEnded bool
	Summary      settlement.Summary
}

// Submit moves a draft auction into the approval queue.
func (s *LifecycleService) Submit(ctx context.Context, auctionID, actorID string) error {
	return s.transition(ctx, auctionID, actorID, StatusPendingApproval)
}

// Approve accepts a pending auction.
func (s *LifecycleService) Approve(ctx context.Context, auctionID, actorID string) error {
	return s.transition(ctx, auctionID, actorID, StatusApproved)
}

// Reject declines a pending auction.
func (s *LifecycleService) Reject(ctx context.Context, auctionID, actorID string) error {
	return s.transition(ctx, auctionID, actorID, StatusRejected)
}

// Cancel abandons an auction from any pre-ended working state.
func (s *LifecycleService) Cancel(ctx context.Context, auctionID, actorID string) error {
	return s.transition(ctx, auctionID, actorID, StatusCancelled)
}

func (s *LifecycleService) transition(ctx context.Context, auctionID, actorID string, next Status) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("auction: begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)

	snap, err := s.repo.LockAuction(ctx, tx, auctionID)
	if err != nil {
		return err
	}
	if !CanTransition(snap.Status, next) {
		return fault.Errorf(fault.KindState, "auction: invalid transition %s -> %s", snap.Status, next)
	}

	if err := s.repo.SetStatus(ctx, tx, auctionID, next, actorID); err != nil {
		return err
	}

	payload := map[string]any{
		"auction_id": auctionID,
		"previous":   snap.Status,
		"next":       next,
	}
	if actorID != "" {
		payload["actor_id"] = actorID
	}
	if err := s.repo.EnqueueOutbox(ctx, tx, TopicStatusChanged, payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fault.FromPg(fmt.Errorf("auction: commit transition: %w", err), "auction: transition lost race")
	}
	return nil
}

// Start moves an approved auction to LIVE. It fails when the auction has no
// items or its close time is missing or already past.
func (s *LifecycleService) Start(ctx context.Context, auctionID, actorID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("auction: begin start tx: %w", err)
	}
	defer tx.Rollback(ctx)

	snap, err := s.repo.LockAuction(ctx, tx, auctionID)
	if err != nil {
		return err
	}
	if !CanTransition(snap.Status, StatusLive) {
		return fault.Errorf(fault.KindState, "auction: invalid transition %s -> %s", snap.Status, StatusLive)
	}

	count, err := s.repo.CountItems(ctx, tx, auctionID)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNoItems
	}

	now := s.now()
	if snap.ClosesAt == nil || !snap.ClosesAt.After(now) {
		return fault.New(fault.KindState, "auction: close time missing or already past")
	}

	if err := s.repo.MarkLive(ctx, tx, auctionID, now); err != nil {
		return err
	}

	if err := s.repo.EnqueueOutbox(ctx, tx, TopicStarted, map[string]any{
		"auction_id": auctionID,
		"closes_at":  snap.ClosesAt.UTC(),
		"item_count": count,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fault.FromPg(fmt.Errorf("auction: commit start: %w", err), "auction: start lost race")
	}
	return nil
}

// Extend pushes the close time of a live auction forward by the given
// duration. Manual extensions do not consume the anti-snipe budget.
func (s *LifecycleService) Extend(ctx context.Context, auctionID, actorID string, by time.Duration) (time.Time, error) {
	if by <= 0 {
		return time.Time{}, fault.New(fault.KindValidation, "auction: extension must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("auction: begin extend tx: %w", err)
	}
	defer tx.Rollback(ctx)

	snap, err := s.repo.LockAuction(ctx, tx, auctionID)
	if err != nil {
		return time.Time{}, err
	}
	if snap.Status != StatusLive {
		return time.Time{}, ErrNotLive
	}

	newClose := snap.ClosesAt.Add(by)
	if err := s.repo.PushClose(ctx, tx, auctionID, newClose); err != nil {
		return time.Time{}, err
	}

	if err := s.repo.EnqueueOutbox(ctx, tx, TopicExtended, map[string]any{
		"auction_id": auctionID,
		"closes_at":  newClose.UTC(),
		"manual":     true,
	}); err != nil {
		return time.Time{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, fault.FromPg(fmt.Errorf("auction: commit extend: %w", err), "auction: extend lost race")
	}
	return newClose, nil
}

// End freezes the ledger, resolves winners exactly once, and moves the
// auction to ENDED. Calling End on an already-ended auction is a no-op.
// The settlement gateway is only invoked after the transaction commits.
func (s *LifecycleService) End(ctx context.Context, auctionID, actorID string) (CloseResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CloseResult{}, fmt.Errorf("auction: begin end tx: %w", err)
	}
	defer tx.Rollback(ctx)

	snap, err := s.repo.LockAuction(ctx, tx, auctionID)
	if err != nil {
		return CloseResult{}, err
	}
	if snap.Status == StatusEnded {
		return CloseResult{AlreadyEnded: true}, nil
	}
	if !CanTransition(snap.Status, StatusEnded) {
		return CloseResult{}, fault.Errorf(fault.KindState, "auction: invalid transition %s -> %s", snap.Status, StatusEnded)
	}

	summary, err := s.resolver.ResolveAuctionTx(ctx, tx, auctionID)
	if err != nil {
		return CloseResult{}, err
	}

	if err := s.repo.SetStatus(ctx, tx, auctionID, StatusEnded, actorID); err != nil {
		return CloseResult{}, err
	}

	winners := make([]map[string]any, 0, len(summary.Winners))
	for _, w := range summary.Winners {
		winners = append(winners, map[string]any{
			"item_id":   w.ItemID,
			"winner_id": w.WinnerID,
			"hammer":    w.Hammer,
			"fee_share": w.FeeShare,
		})
	}
	if err := s.repo.EnqueueOutbox(ctx, tx, TopicEnded, map[string]any{
		"auction_id":    auctionID,
		"winners":       winners,
		"total_revenue": summary.TotalRevenue,
		"platform_fee":  summary.PlatformFee,
	}); err != nil {
		return CloseResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return CloseResult{}, fault.FromPg(fmt.Errorf("auction: commit end: %w", err), "auction: end lost race")
	}

	// Post-commit, best-effort: settlement failure never unwinds the close.
	if err := s.gateway.Deliver(ctx, summary); err != nil {
		s.logger.Warn("settlement delivery failed", "auction_id", auctionID, "err", err)
	}

	return CloseResult{Summary: summary}, nil
}
