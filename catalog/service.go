package catalog

import (
	"context"
	"strings"

	"bidflow/fault"
)

// Service fronts the item repository with input validation.
type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Attach(ctx context.Context, params AttachParams) (Item, error) {
	params.Title = strings.TrimSpace(params.Title)
	if params.Title == "" {
		return Item{}, fault.New(fault.KindValidation, "catalog: title is required")
	}
	if params.StartingPrice <= 0 {
		return Item{}, fault.New(fault.KindValidation, "catalog: starting price must be positive")
	}
	if params.ReservePrice != nil && *params.ReservePrice < params.StartingPrice {
		return Item{}, fault.New(fault.KindValidation, "catalog: reserve must not undercut the starting price")
	}
	return s.repo.Attach(ctx, params)
}

func (s *Service) GetByID(ctx context.Context, itemID string) (Item, error) {
	return s.repo.GetByID(ctx, itemID)
}

func (s *Service) ListByAuction(ctx context.Context, auctionID string) ([]Item, error) {
	return s.repo.ListByAuction(ctx, auctionID)
}
