package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// takeScript refills the bucket for the elapsed time, then takes ARGV[4] tokens if it can.
// Returns 0 on success or the microseconds until enough tokens will exist.
const takeScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local n = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = burst
	ts = now
end

if now > ts then
	tokens = math.min(burst, tokens + (now - ts) * rate / 1000000)
	ts = now
end

local wait = 0
if tokens >= n then
	tokens = tokens - n
else
	wait = math.ceil((n - tokens) * 1000000 / rate)
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
redis.call('PEXPIRE', KEYS[1], math.ceil(burst / rate * 1000) + 1000)
return wait
`

const minRedisWait = time.Millisecond

// RedisBucket is a token bucket whose state lives in a single Redis hash.
//
// The refill is computed atomically inside a Lua script, so any number of processes can share it.
type RedisBucket struct {
	client rueidis.Client
	script *rueidis.Lua
	key    string
	rate   float64
	burst  int
	opts   options
}

// NewRedisBucket creates a bucket stored under key.
func NewRedisBucket(client rueidis.Client, key string, perSecond float64, burst int, opts ...Option) *RedisBucket {
	return &RedisBucket{
		client: client,
		script: rueidis.NewLuaScript(takeScript),
		key:    key,
		rate:   perSecond,
		burst:  burst,
		opts:   buildOptions(opts),
	}
}

// NewRedisClient connects to addr with client-side caching disabled.
func NewRedisClient(addr string) (rueidis.Client, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Acquire polls the shared bucket until n tokens are taken.
//
// A Redis failure is reported as [shared.ErrTransient] so the caller's task is retried.
func (b *RedisBucket) Acquire(ctx context.Context, n int) error {
	if err := checkN(n, b.burst); err != nil {
		return err
	}

	start := time.Now()
	for {
		wait, err := b.TryAcquire(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(ctx)
			}
			return fmt.Errorf("%w: rate limiter backend: %w", shared.ErrTransient, err)
		}
		if wait == 0 {
			b.opts.observe(time.Since(start))
			return nil
		}

		timer := time.NewTimer(max(wait, minRedisWait))
		select {
		case <-ctx.Done():
			timer.Stop()
			return cancelled(ctx)
		case <-timer.C:
		}
	}
}

// TryAcquire makes one attempt. It returns zero when the tokens were taken, otherwise
// how long until they will be available.
func (b *RedisBucket) TryAcquire(ctx context.Context, n int) (time.Duration, error) {
	now := b.opts.clock.Now().UnixMicro()
	resp := b.script.Exec(ctx, b.client, []string{b.key}, []string{
		strconv.FormatFloat(b.rate, 'f', -1, 64),
		strconv.Itoa(b.burst),
		strconv.FormatInt(now, 10),
		strconv.Itoa(n),
	})

	micros, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("token bucket script: %w", err)
	}
	return time.Duration(micros) * time.Microsecond, nil
}

// Ping checks that Redis is reachable.
func (b *RedisBucket) Ping(ctx context.Context) error {
	return b.client.Do(ctx, b.client.B().Ping().Build()).Error()
}
