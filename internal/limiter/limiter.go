// Package limiter caps concurrent uploads per client.
package limiter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Limiter struct {
	rdb         *redis.Client
	maxInflight int
	leaseTTL    time.Duration
	mu          sync.Mutex
	sem         map[string]chan struct{}
}

type Options struct {
	// RedisURL enables a counter shared across server replicas. Empty keeps
	// the limit in-process only.
	RedisURL    string
	MaxInflight int
	// LeaseTTL expires a shared counter whose holder died without releasing.
	LeaseTTL time.Duration
}

func New(opts Options) (*Limiter, error) {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 10 * time.Minute
	}
	l := &Limiter{maxInflight: opts.MaxInflight, leaseTTL: opts.LeaseTTL, sem: map[string]chan struct{}{}}
	if opts.RedisURL == "" {
		return l, nil
	}
	ro, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(ro)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	l.rdb = c
	return l, nil
}

func (l *Limiter) key(client string) string {
	return fmt.Sprintf("imgconvert:inflight:%s", strings.ToLower(client))
}

// Allow tries to reserve a slot for client. It returns a release function and
// true if allowed; otherwise a no-op release and false.
func (l *Limiter) Allow(ctx context.Context, client string) (func(), bool) {
	k := strings.ToLower(client)
	l.mu.Lock()
	ch, ok := l.sem[k]
	if !ok {
		ch = make(chan struct{}, l.maxInflight)
		l.sem[k] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	default:
		return func() {}, false
	}
	local := func() { <-ch }

	if l.rdb == nil {
		return local, true
	}

	rk := l.key(client)
	n, err := l.rdb.Incr(ctx, rk).Result()
	if err != nil {
		// Redis trouble degrades to the in-process limit.
		log.Warn().Err(err).Str("client", client).Msg("shared limiter unavailable")
		return local, true
	}
	_ = l.rdb.Expire(ctx, rk, l.leaseTTL).Err()
	if n > int64(l.maxInflight) {
		_ = l.rdb.Decr(ctx, rk).Err()
		local()
		return func() {}, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = l.rdb.Decr(context.Background(), rk).Err()
			local()
		})
	}, true
}

func (l *Limiter) Close() error {
	if l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
