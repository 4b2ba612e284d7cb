// Command voucher-ingest bulk-imports voucher codes from gzipped code drops
// (one code per line). Files are scanned concurrently; a bloom filter keeps
// the cross-file dedup set cheap enough to hold codes by the hundred million.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/hexshop/checkout/internal/storage/postgres"
)

const (
	bloomCapacity = 100_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 6
	maxCodeLen    = 12
)

const insertVoucherSQL = `INSERT INTO vouchers (code, discount_amount, active)
VALUES ($1, $2, $3)
ON CONFLICT (code) DO NOTHING`

func main() {
	var (
		databaseURL   string
		discountMinor int64
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Int64Var(&discountMinor, "discount", 500, "discount amount in minor units for ingested codes")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		slog.Error("usage: voucher-ingest [flags] codes1.gz [codes2.gz ...]")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, discountMinor, flag.Args()); err != nil {
		slog.Error("voucher ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("voucher ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, discountMinor int64, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	// Shared dedup filter: a hit means "probably seen", so a rare false
	// positive drops a code rather than double-inserting one. The database's
	// ON CONFLICT guard backstops the filter anyway.
	var (
		mu   sync.Mutex
		seen = bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	)

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			var count, inserted uint64
			err := streamGzFile(ctx, f, func(code string) error {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return nil
				}

				count++
				if count%progressEvery == 0 {
					slog.Info("ingest progress",
						slog.Int("file", i+1),
						slog.Uint64("scanned", count),
						slog.Uint64("inserted", inserted),
					)
				}

				mu.Lock()
				dup := seen.TestOrAddString(code)
				mu.Unlock()
				if dup {
					return nil
				}

				if _, err := pool.Exec(ctx, insertVoucherSQL, code, discountMinor, true); err != nil {
					return errors.Wrapf(err, "insert voucher %s", code)
				}
				inserted++
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "ingest file %s", f)
			}

			slog.Info("file complete",
				slog.Int("file", i+1),
				slog.Uint64("scanned", count),
				slog.Uint64("inserted", inserted),
			)
			return nil
		})
	}

	return g.Wait()
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
