package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"bidflow/auction"
	"bidflow/bidding"
	"bidflow/identity"
	"bidflow/outbox"
	"bidflow/settlement"
	"bidflow/test/actors"
	"bidflow/test/chaos"
	"bidflow/test/infra"
	"bidflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent bidders")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestAuctionConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool, *flConcurrency)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := identity.NewService(identity.NewRepository(pool), "stress-secret", time.Hour)
	ledger := bidding.NewLedger(pool, accounts, bidding.Rules{
		MinIncrement:       100,
		MaxAmount:          100_000_000,
		WithdrawProtection: 2 * time.Second,
	})
	gateway, err := settlement.NewGateway("noop", logger)
	if err != nil {
		t.Fatalf("settlement gateway: %v", err)
	}
	lifecycle := auction.NewLifecycleService(pool, auction.NewRepository(), settlement.NewResolver(), gateway, logger)
	worker := outbox.NewWorker(pool, outbox.LogBroadcaster{Logger: logger}, logger, 100*time.Millisecond, 25, 8)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// bidders battling over the same item
	for i := 0; i < *flConcurrency; i++ {
		bidderID := seedData.bidders[i%len(seedData.bidders)]
		g.Go(func() error {
			return actors.Bidder(ctx2, ledger, seedData.itemID, bidderID, 100, stop)
		})
	}
	// one withdrawer exercising the restore path
	g.Go(func() error {
		return actors.Withdrawer(ctx2, ledger, seedData.itemID, seedData.withdrawer, 100, stop)
	})
	// closers racing to end the auction once the deadline passes
	endAfter := seedData.closesAt
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			return actors.Closer(ctx2, func(cctx context.Context) error {
				_, err := lifecycle.End(cctx, seedData.auctionID, seedData.organizer)
				return err
			}, endAfter, stop)
		})
	}
	// outbox drain
	g.Go(func() error { return actors.OutboxDrainer(ctx2, worker, stop) })
	// read traffic
	g.Go(func() error { return actors.Reader(ctx2, ledger, pool, seedData.itemID, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}

	// final sweep after the dust settles
	if name, row, err := oracles.Run(context.Background(), pool); err == nil && name != "" {
		dumpRecent(t, context.Background(), pool)
		t.Fatalf("Oracle %s failed post-run. First row: %s (seed=%d)", name, row, seed)
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	schoolID   string
	organizer  string
	lister     string
	withdrawer string
	bidders    []string
	auctionID  string
	itemID     string
	closesAt   time.Time
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool, bidders int) seedIDs {
	t.Helper()
	var s seedIDs
	nonce := rand.Int63()

	if err := pool.QueryRow(ctx, `INSERT INTO schools (name) VALUES ($1) RETURNING id`,
		fmt.Sprintf("Stress Elementary %d", nonce)).Scan(&s.schoolID); err != nil {
		t.Fatalf("seed school: %v", err)
	}
	account := func(label, role string) string {
		var id string
		if err := pool.QueryRow(ctx, `INSERT INTO accounts (email, full_name, password_hash, role) VALUES ($1,$2,'x',$3::account_role) RETURNING id`,
			fmt.Sprintf("%s-%d@example.com", label, nonce), label, role).Scan(&id); err != nil {
			t.Fatalf("seed account %s: %v", label, err)
		}
		return id
	}
	s.organizer = account("organizer", "organizer")
	s.lister = account("lister", "lister")
	s.withdrawer = account("withdrawer", "bidder")
	for i := 0; i < bidders; i++ {
		s.bidders = append(s.bidders, account(fmt.Sprintf("bidder-%d", i), "bidder"))
	}

	// close partway through the run so the closers and late bidders overlap
	s.closesAt = time.Now().Add(*flDuration / 2)
	if err := pool.QueryRow(ctx, `
        INSERT INTO auctions (school_id, title, status, closes_at, auto_extend, extend_threshold_secs, extend_by_secs, max_extensions)
        VALUES ($1, 'Stress Gala', 'live', $2, true, 5, 3, 4) RETURNING id
    `, s.schoolID, s.closesAt).Scan(&s.auctionID); err != nil {
		t.Fatalf("seed auction: %v", err)
	}
	if err := pool.QueryRow(ctx, `
        INSERT INTO items (auction_id, lister_id, title, starting_price)
        VALUES ($1, $2, 'Stress Lot', 1000) RETURNING id
    `, s.auctionID, s.lister).Scan(&s.itemID); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"bids", `SELECT id, item_id, bidder_id, amount, status, seq, placed_at FROM bids ORDER BY placed_at DESC LIMIT 50`},
		{"auctions", `SELECT id, status, closes_at, extension_count, max_extensions FROM auctions ORDER BY updated_at DESC LIMIT 10`},
		{"outbox", `SELECT id, topic, attempts, processed_at, created_at FROM outbox ORDER BY id DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
