package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"math/bits"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"
)

const progressEvery = 10_000_000

type ingestConfig struct {
	MinFiles      int
	MinLen        int
	MaxLen        int
	Capacity      uint
	FalsePositive float64
	Writers       int
}

// ingester finds codes shared between dumps in two streaming passes: the
// first builds a bloom filter per dump, the second tests every code against
// the other dumps' filters.
type ingester struct {
	cfg ingestConfig
}

func newIngester(cfg ingestConfig) *ingester {
	if cfg.MinFiles < 1 {
		cfg.MinFiles = 1
	}
	return &ingester{cfg: cfg}
}

func (in *ingester) accept(code string) bool {
	return len(code) >= in.cfg.MinLen && len(code) <= in.cfg.MaxLen
}

// Codes returns the codes present in at least MinFiles of files.
func (in *ingester) Codes(ctx context.Context, files []string) ([]string, error) {
	if len(files) > bits.UintSize {
		return nil, errors.Errorf("at most %d dumps are supported", bits.UintSize)
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f, err := in.buildFilter(gctx, i, path)
			filters[i] = f
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding shared codes")
	masks := make([]map[string]uint, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			m, err := in.candidates(gctx, i, path, filters)
			masks[i] = m
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "find candidates")
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}
	var codes []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= in.cfg.MinFiles {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

func (in *ingester) buildFilter(ctx context.Context, idx int, path string) (*bloom.BloomFilter, error) {
	filter := bloom.NewWithEstimates(in.cfg.Capacity, in.cfg.FalsePositive)
	var n uint64
	err := scanDump(ctx, path, func(code string) {
		if !in.accept(code) {
			return
		}
		filter.AddString(code)
		if n++; n%progressEvery == 0 {
			slog.Info("pass 1 progress", slog.Int("file", idx+1), slog.Uint64("codes", n))
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "index %s", path)
	}
	slog.Info("pass 1 complete", slog.Int("file", idx+1), slog.Uint64("codes", n))
	return filter, nil
}

// candidates returns the codes of dump idx that some other dump's filter
// probably holds, each marked with the bit of idx. After merging, the number
// of set bits is the number of dumps the code was seen in.
func (in *ingester) candidates(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) (map[string]uint, error) {
	out := make(map[string]uint)
	self := uint(1) << uint(idx)
	var n uint64
	err := scanDump(ctx, path, func(code string) {
		if !in.accept(code) {
			return
		}
		if n++; n%progressEvery == 0 {
			slog.Info("pass 2 progress", slog.Int("file", idx+1), slog.Uint64("codes", n))
		}
		if in.cfg.MinFiles == 1 {
			out[code] |= self
			return
		}
		for j, f := range filters {
			if j != idx && f.TestString(code) {
				out[code] |= self
				return
			}
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}
	slog.Info("pass 2 complete", slog.Int("file", idx+1), slog.Uint64("codes", n), slog.Int("candidates", len(out)))
	return out, nil
}

// scanDump calls fn for every line of a gzip file.
func scanDump(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	return scanLines(ctx, gz, fn)
}

func scanLines(ctx context.Context, r io.Reader, fn func(code string)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	return scanner.Err()
}
