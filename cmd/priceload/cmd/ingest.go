package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/gyeh/priceload/internal/db"
	"github.com/gyeh/priceload/internal/ingest"
	"github.com/gyeh/priceload/internal/refdata"
)

var workersFlag int

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest one or more disclosure files",
	Long: `Ingest hospital disclosure files into the database.

Each file is loaded in its own transaction; a failed file rolls back
without affecting the others. Format is chosen by extension: .csv files
are parsed as tall or wide CSV, everything else as machine-readable JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVarP(&workersFlag, "workers", "w", 0, "concurrent loads (default from config)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, path := range args {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}
	}

	pool, err := newPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	workers := cfg.Ingest.Workers
	if workersFlag > 0 {
		if int32(workersFlag) >= cfg.Database.MaxConns {
			return fmt.Errorf("--workers (%d) must be below database.max_conns (%d)",
				workersFlag, cfg.Database.MaxConns)
		}
		workers = workersFlag
	}

	resolver := refdata.NewResolver(db.New(pool), cfg.Ingest.ResolveRetries, cfg.Ingest.ResolveRetryInterval)
	coord := ingest.NewCoordinator(pool, resolver, cfg.Ingest, log)

	results := ingest.RunAll(ctx, coord, args, workers)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("FAILED    %-40s %v\n", r.Path, r.Err)
			continue
		}
		fmt.Printf("committed %-40s hospital=%q items=%d charges=%d payer_charges=%d modifiers=%d skipped=%d\n",
			r.Path, r.Hospital, r.Items, r.Charges, r.PayerCharges, r.Modifiers, r.SkippedRows)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d loads failed", failed, len(results))
	}
	return nil
}

func newPool(ctx context.Context) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pc.MaxConns = cfg.Database.MaxConns
	pc.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return pool, nil
}
