// Command coupon-ingest imports promo codes from gzip-compressed code dumps.
// A code is imported when it appears in at least -min-files of the dumps.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		pattern     string
		databaseURL string
		cfg         ingestConfig
	)
	flag.StringVar(&pattern, "files", "data/couponbase*.gz", "glob of gzip code dumps")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&cfg.MinFiles, "min-files", 2, "number of dumps a code must appear in")
	flag.IntVar(&cfg.MinLen, "min-len", 8, "shortest accepted code")
	flag.IntVar(&cfg.MaxLen, "max-len", 10, "longest accepted code")
	flag.UintVar(&cfg.Capacity, "bloom-capacity", 120_000_000, "expected codes per dump")
	flag.Float64Var(&cfg.FalsePositive, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.IntVar(&cfg.Writers, "writers", 8, "concurrent database writers")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, pattern, databaseURL, cfg); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, cfg ingestConfig) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrapf(err, "glob %s", pattern)
	}
	sort.Strings(files)
	if len(files) < cfg.MinFiles {
		return errors.Errorf("found %d dumps matching %s, need at least %d", len(files), pattern, cfg.MinFiles)
	}

	codes, err := newIngester(cfg).Codes(ctx, files)
	if err != nil {
		return err
	}
	slog.Info("valid codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeCoupons(ctx, postgres.NewSeeder(pool), codes, cfg.Writers); err != nil {
		return errors.Wrap(err, "write coupons")
	}
	return nil
}
