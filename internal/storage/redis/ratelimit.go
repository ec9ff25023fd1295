package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// windowScript counts a request against KEYS[1] (current window) unless the
// weighted sum with KEYS[2] (previous window) already reached the limit.
// Returns {allowed, used}.
var windowScript = goredis.NewScript(`
local limit = tonumber(ARGV[1])
local weight = tonumber(ARGV[2])
local curr = tonumber(redis.call("GET", KEYS[1]) or "0")
local prev = tonumber(redis.call("GET", KEYS[2]) or "0")
local used = prev * weight + curr
if used >= limit then
	return {0, math.ceil(used)}
end
curr = redis.call("INCR", KEYS[1])
if curr == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return {1, math.ceil(prev * weight + curr)}
`)

var _ httpmiddleware.Limiter = (*RateLimiter)(nil)

// RateLimiter is a sliding window limiter shared by every API replica.
// Each key keeps one counter per fixed window, kept for two windows.
type RateLimiter struct {
	client goredis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRateLimiter allows limit requests per key in any window-long interval.
// Counters are stored as "ratelimit:" + key + ":" + window number.
func NewRateLimiter(client goredis.UniversalClient, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, prefix: "ratelimit:", limit: limit, window: window}
}

// Allow implements httpmiddleware.Limiter.
func (l *RateLimiter) Allow(ctx context.Context, key string, now time.Time) (httpmiddleware.Decision, error) {
	start := now.Truncate(l.window)
	n := start.UnixNano() / int64(l.window)
	keys := []string{
		l.prefix + key + ":" + strconv.FormatInt(n, 10),
		l.prefix + key + ":" + strconv.FormatInt(n-1, 10),
	}
	weight := 1 - float64(now.Sub(start))/float64(l.window)

	res, err := windowScript.Run(ctx, l.client, keys,
		l.limit,
		strconv.FormatFloat(weight, 'f', 6, 64),
		(2 * l.window).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return httpmiddleware.Decision{}, errors.Wrapf(err, "rate limit %q", key)
	}
	if len(res) != 2 {
		return httpmiddleware.Decision{}, errors.Errorf("rate limit %q: unexpected reply %v", key, res)
	}
	return httpmiddleware.Decision{
		Allowed:   res[0] == 1,
		Limit:     l.limit,
		Remaining: max(l.limit-int(res[1]), 0),
		ResetAt:   start.Add(l.window),
	}, nil
}
