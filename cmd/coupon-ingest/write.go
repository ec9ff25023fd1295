package main

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// codeRule is the promotion granted by a code prefix.
type codeRule struct {
	percent      int64
	fixed        int64
	freeShipping bool
	minSpend     int64
}

var codeRules = map[string]codeRule{
	"BIRTHDAY": {freeShipping: true},
	"BUYGETON": {percent: 15, minSpend: 20},
	"FIFTYOFF": {percent: 50},
	"SIXTYOFF": {percent: 60},
	"FREEZAAA": {percent: 100},
	"GNULINUX": {percent: 15},
	"OVER9000": {fixed: 9, minSpend: 9},
	"HAPPYHRS": {percent: 18},
}

var defaultRule = codeRule{percent: 10}

// ruleFor picks the rule of the first eight characters of code.
func ruleFor(code string) codeRule {
	key := code
	if len(key) > 8 {
		key = key[:8]
	}
	if r, ok := codeRules[key]; ok {
		return r
	}
	return defaultRule
}

// toCoupon builds an active coupon that each customer may use once.
func (r codeRule) toCoupon(code string) coupon.Coupon {
	once := 1
	c := coupon.Coupon{
		Code:                  code,
		FreeShipping:          r.freeShipping,
		UsageLimitPerCustomer: &once,
		IsActive:              true,
	}
	switch {
	case r.percent > 0:
		c.Value = decimal.NewFromInt(r.percent)
		c.IsPercent = true
	case r.fixed > 0:
		c.Value = decimal.NewFromInt(r.fixed)
	}
	if r.minSpend > 0 {
		spend := decimal.NewFromInt(r.minSpend)
		c.MinimumSpend = &spend
	}
	return c
}

type couponWriter interface {
	UpsertCoupon(ctx context.Context, c coupon.Coupon) (int64, error)
}

// writeCoupons upserts codes using up to workers concurrent writers.
func writeCoupons(ctx context.Context, w couponWriter, codes []string, workers int) error {
	slog.Info("writing coupons", slog.Int("count", len(codes)), slog.Int("writers", workers))
	if workers < 1 {
		workers = 1
	}

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, code := range codes {
		g.Go(func() error {
			if _, err := w.UpsertCoupon(gctx, ruleFor(code).toCoupon(code)); err != nil {
				return errors.Wrapf(err, "upsert %s", code)
			}
			if n := written.Add(1); n%1000 == 0 || int(n) == len(codes) {
				slog.Info("write progress", slog.Int64("written", n), slog.Int("total", len(codes)))
			}
			return nil
		})
	}
	return g.Wait()
}
