package settlement

import (
	"context"
	"fmt"
	"log/slog"
)

// Gateway receives closure summaries for out-of-band payment capture. The
// bidding core never talks to a payment provider; variants of this interface
// are selected by configuration and swapped without touching the engine.
type Gateway interface {
	Deliver(ctx context.Context, summary Summary) error
}

// NewGateway selects a gateway variant by name.
func NewGateway(name string, logger *slog.Logger) (Gateway, error) {
	switch name {
	case "log":
		return &LogGateway{logger: logger}, nil
	case "noop":
		return NoopGateway{}, nil
	default:
		return nil, fmt.Errorf("settlement: unknown gateway %q", name)
	}
}

// LogGateway records closure summaries in the process log. Useful for
// development and as the delivery target when capture happens out of band.
type LogGateway struct {
	logger *slog.Logger
}

func (g *LogGateway) Deliver(ctx context.Context, summary Summary) error {
	g.logger.Info("closure summary",
		"auction_id", summary.AuctionID,
		"winners", len(summary.Winners),
		"total_revenue", summary.TotalRevenue,
		"platform_fee", summary.PlatformFee,
		"net_revenue", summary.NetRevenue,
	)
	for _, w := range summary.Winners {
		g.logger.Info("item sold",
			"auction_id", summary.AuctionID,
			"item_id", w.ItemID,
			"winner_id", w.WinnerID,
			"hammer", w.Hammer,
			"fee_share", w.FeeShare,
		)
	}
	return nil
}

// NoopGateway discards summaries.
type NoopGateway struct{}

func (NoopGateway) Deliver(context.Context, Summary) error { return nil }
