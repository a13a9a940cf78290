package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bidflow/fault"
)

// TenantDirectory is the school collaborator surface auction creation
// consumes.
type TenantDirectory interface {
	Exists(ctx context.Context, schoolID string) (bool, error)
}

// CRUDService handles draft auction creation and listing.
type CRUDService struct {
	pool    *pgxpool.Pool
	schools TenantDirectory
}

func NewCRUDService(pool *pgxpool.Pool, schools TenantDirectory) *CRUDService {
	return &CRUDService{pool: pool, schools: schools}
}

func (s *CRUDService) Create(ctx context.Context, creatorID string, params CreateParams) (Record, error) {
	if params.SchoolID == "" {
		return Record{}, fault.New(fault.KindValidation, "auction: school id required")
	}
	if params.Title == "" {
		return Record{}, fault.New(fault.KindValidation, "auction: title required")
	}
	if params.FeeBps < 0 || params.FeeBps > 10000 {
		return Record{}, fault.New(fault.KindValidation, "auction: fee rate out of range")
	}
	if params.FeeMinimum < 0 {
		return Record{}, fault.New(fault.KindValidation, "auction: negative minimum fee")
	}
	if params.ClosesAt == nil {
		return Record{}, fault.New(fault.KindValidation, "auction: close time required")
	}
	if params.OpensAt != nil && !params.ClosesAt.After(*params.OpensAt) {
		return Record{}, fault.New(fault.KindValidation, "auction: close time must follow open time")
	}
	if params.AutoExtend && (params.ExtendThreshold <= 0 || params.ExtendBy <= 0) {
		return Record{}, fault.New(fault.KindValidation, "auction: auto-extend window must be positive")
	}
	if params.MaxExtensions < 0 {
		return Record{}, fault.New(fault.KindValidation, "auction: negative extension budget")
	}

	known, err := s.schools.Exists(ctx, params.SchoolID)
	if err != nil {
		return Record{}, fmt.Errorf("auction: check school: %w", err)
	}
	if !known {
		return Record{}, fault.New(fault.KindValidation, "auction: unknown school")
	}

	var creator any
	if creatorID != "" {
		creator = creatorID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("auction: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
        INSERT INTO auctions (school_id, title, status, opens_at, closes_at,
                              fee_bps, fee_minimum, auto_extend,
                              extend_threshold_secs, extend_by_secs,
                              max_extensions, created_by)
        VALUES ($1,$2,'draft',$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, school_id, title, status::text, opens_at, closes_at,
                  fee_bps, fee_minimum, auto_extend,
                  extend_threshold_secs, extend_by_secs,
                  extension_count, max_extensions, created_by, created_at, updated_at
    `
	rec, err := scanRecord(tx.QueryRow(ctx, insertSQL,
		params.SchoolID,
		params.Title,
		params.OpensAt,
		params.ClosesAt,
		params.FeeBps,
		params.FeeMinimum,
		params.AutoExtend,
		int64(params.ExtendThreshold.Seconds()),
		int64(params.ExtendBy.Seconds()),
		params.MaxExtensions,
		creator,
	))
	if err != nil {
		return Record{}, fmt.Errorf("auction: insert: %w", err)
	}

	if err := enqueueOutbox(ctx, tx, "auction.created", map[string]any{
		"auction_id": rec.ID,
		"school_id":  rec.SchoolID,
		"created_by": creatorID,
	}); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("auction: commit: %w", err)
	}

	return rec, nil
}

func (s *CRUDService) GetByID(ctx context.Context, auctionID string) (Record, error) {
	const query = `
        SELECT id, school_id, title, status::text, opens_at, closes_at,
               fee_bps, fee_minimum, auto_extend,
               extend_threshold_secs, extend_by_secs,
               extension_count, max_extensions, created_by, created_at, updated_at
        FROM auctions
        WHERE id = $1
    `
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("auction: get by id: %w", err)
	}
	return rec, nil
}

func (s *CRUDService) List(ctx context.Context, filters ListFilters) ([]Record, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	const query = `
        SELECT id, school_id, title, status::text, opens_at, closes_at,
               fee_bps, fee_minimum, auto_extend,
               extend_threshold_secs, extend_by_secs,
               extension_count, max_extensions, created_by, created_at, updated_at
        FROM auctions
        WHERE school_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3
    `

	rows, err := s.pool.Query(ctx, query, filters.SchoolID, filters.PageSize, (filters.Page-1)*filters.PageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("auction: list: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("auction: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("auction: iterate: %w", err)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM auctions WHERE school_id=$1`, filters.SchoolID).Scan(&total); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec           Record
		thresholdSecs int64
		extendBySecs  int64
	)
	if err := row.Scan(
		&rec.ID,
		&rec.SchoolID,
		&rec.Title,
		&rec.Status,
		&rec.OpensAt,
		&rec.ClosesAt,
		&rec.FeeBps,
		&rec.FeeMinimum,
		&rec.AutoExtend,
		&thresholdSecs,
		&extendBySecs,
		&rec.ExtensionCount,
		&rec.MaxExtensions,
		&rec.CreatedBy,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return Record{}, err
	}
	rec.ExtendThreshold = time.Duration(thresholdSecs) * time.Second
	rec.ExtendBy = time.Duration(extendBySecs) * time.Second
	return rec, nil
}
