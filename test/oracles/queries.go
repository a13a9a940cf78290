package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant checks run against a live database while the
// actors hammer it. Each query selects violating rows; an empty result
// means the invariant holds.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_active_bid_per_item",
			SQL: `SELECT item_id, COUNT(*) FROM bids
                  WHERE status = 'active'
                  GROUP BY item_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_seq_contiguous_per_item",
			SQL: `SELECT item_id, COUNT(*), MAX(seq) FROM bids
                  GROUP BY item_id HAVING MAX(seq) <> COUNT(*)`,
		},
		{
			Name: "O3_active_dominates_outbid",
			SQL: `SELECT o.id FROM bids o
                  JOIN bids a ON a.item_id = o.item_id AND a.status = 'active'
                  WHERE o.status = 'outbid'
                    AND (o.amount > a.amount OR (o.amount = a.amount AND o.seq > a.seq))`,
		},
		{
			Name: "O4_no_self_bids",
			SQL: `SELECT b.id FROM bids b
                  JOIN items i ON i.id = b.item_id
                  WHERE b.bidder_id = i.lister_id`,
		},
		{
			Name: "O5_bids_only_on_opened_auctions",
			SQL: `SELECT b.id, a.status FROM bids b
                  JOIN auctions a ON a.id = b.auction_id
                  WHERE a.status NOT IN ('live', 'ended')`,
		},
		{
			Name: "O6_accepted_only_at_settlement",
			SQL: `SELECT b.id FROM bids b
                  JOIN auctions a ON a.id = b.auction_id
                  WHERE b.status = 'accepted'
                    AND (a.status <> 'ended' OR b.reserve_met = false)`,
		},
		{
			Name: "O7_one_winner_per_item",
			SQL: `SELECT item_id, COUNT(*) FROM bids
                  WHERE status = 'accepted'
                  GROUP BY item_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O8_extension_count_within_budget",
			SQL: `SELECT id, extension_count, max_extensions FROM auctions
                  WHERE max_extensions > 0 AND extension_count > max_extensions`,
		},
		{
			Name: "O9_outbox_not_stale",
			SQL: `SELECT id, topic, attempts FROM outbox
                  WHERE processed_at IS NULL
                    AND attempts < 8
                    AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample
// row text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
