package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cutline/booking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// bookingAttemptScript keeps a sliding log of accepted attempts per payer in a
// sorted set scored by milliseconds. Refused attempts are not logged, so a
// payer is let through again as soon as the oldest accepted attempt ages out.
//
// KEYS[1] attempt log, ARGV: now_ms, window_ms, limit, member.
// Returns {allowed, attempts, retry_after_ms}.
var bookingAttemptScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local attempts = redis.call("ZCARD", KEYS[1])
if attempts >= limit then
  local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
  local retry = window
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {0, attempts, retry}
end

redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("PEXPIRE", KEYS[1], window)
return {1, attempts + 1, 0}
`)

// BookingAttemptDecision is the limiter's verdict on one booking attempt.
type BookingAttemptDecision struct {
	Allowed    bool
	Attempts   int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up for the Retry-After header.
func (d BookingAttemptDecision) RetryAfterSeconds() int {
	seconds := int((d.RetryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

// BookingAttemptLimiter caps how many checkouts or direct bookings one payer
// may start per window, shared across every instance through Redis.
type BookingAttemptLimiter struct {
	client    redis.UniversalClient
	prefix    string
	limit     int
	window    time.Duration
	now       func() time.Time
	newMember func() string
}

func NewBookingAttemptLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *BookingAttemptLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "cutline:rate_limit"
	}
	if window < time.Second {
		window = time.Minute
	}
	return &BookingAttemptLimiter{
		client:    client,
		prefix:    prefix,
		limit:     limit,
		window:    window,
		now:       time.Now,
		newMember: uuid.NewString,
	}
}

// Allow records an attempt by payer unless the payer is over the limit. A nil
// limiter, a non-positive limit or an unidentifiable payer always allows.
func (l *BookingAttemptLimiter) Allow(ctx context.Context, payer domain.Payer) (BookingAttemptDecision, error) {
	allow := BookingAttemptDecision{Allowed: true}
	if l == nil || l.client == nil || l.limit <= 0 || !payer.Valid() {
		return allow, nil
	}

	key := l.prefix + ":booking_attempt:" + strings.ToLower(payer.Key())
	raw, err := bookingAttemptScript.Run(ctx, l.client, []string{key},
		l.now().UnixMilli(),
		l.window.Milliseconds(),
		int64(l.limit),
		l.newMember(),
	).Int64Slice()
	if err != nil {
		return allow, fmt.Errorf("booking attempt limiter: %w", err)
	}
	if len(raw) != 3 {
		return allow, fmt.Errorf("booking attempt limiter: unexpected reply of %d values", len(raw))
	}

	decision := BookingAttemptDecision{
		Allowed:  raw[0] == 1,
		Attempts: int(raw[1]),
	}
	if !decision.Allowed {
		decision.RetryAfter = time.Duration(raw[2]) * time.Millisecond
		if decision.RetryAfter <= 0 {
			decision.RetryAfter = time.Second
		}
	}
	return decision, nil
}
