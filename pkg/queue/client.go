package queue

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bullscale/bullscale/pkg/config"
)

// Client wraps the Redis connection used to observe queue counters.
// It is read-only with respect to queue contents.
type Client struct {
	rdb     *redis.Client
	logger  *slog.Logger
	backoff Backoff

	mu       sync.Mutex
	pattern  KeyPattern
	down     bool
	attempts int
	retryAt  time.Time
}

// Connect dials Redis and verifies the connection with a ping.
func Connect(ctx context.Context, cfg config.RedisConfig, backoff Backoff, logger *slog.Logger) (*Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, &ConnectError{Addr: cfg.Addr(), Err: err}
	}

	logger.Info("connected to Redis", "addr", cfg.Addr(), "db", cfg.DB, "tls", cfg.TLS)

	return &Client{
		rdb:     rdb,
		logger:  logger,
		backoff: backoff,
	}, nil
}

// Counts returns a fresh snapshot of the queue counters. While the client
// is inside its reconnect window it returns an unavailable error immediately
// instead of blocking; the caller decides whether to skip the cycle.
func (c *Client) Counts(ctx context.Context, prefix, name string) (Snapshot, error) {
	if err := c.gate(ctx); err != nil {
		return Snapshot{}, err
	}

	pattern, err := c.resolvePattern(ctx, prefix, name)
	if err != nil {
		return Snapshot{}, err
	}

	waiting, err := c.listLen(ctx, pattern.WaitKey(prefix, name))
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Waiting: waiting, ObservedAt: time.Now()}

	secondary := []struct {
		state string
		dst   *int64
	}{
		{"active", &snap.Active},
		{"completed", &snap.Completed},
		{"failed", &snap.Failed},
	}
	for _, s := range secondary {
		n, err := c.listLen(ctx, stateKey(prefix, name, s.state))
		if err != nil {
			var qe *Error
			if errors.As(err, &qe) && qe.Kind == KindMalformed {
				// Secondary counters are best effort; a key of an
				// unexpected type counts as zero.
				c.logger.Debug("ignoring counter with unexpected type", "state", s.state)
				continue
			}
			return Snapshot{}, err
		}
		*s.dst = n
	}

	return snap, nil
}

// DetailedStats returns per-state counts across all known queue states.
func (c *Client) DetailedStats(ctx context.Context, prefix, name string) (Stats, error) {
	if err := c.gate(ctx); err != nil {
		return nil, err
	}

	stats := make(Stats, len(detailStates))
	for _, state := range detailStates {
		n, err := c.listLen(ctx, stateKey(prefix, name, state))
		if err != nil {
			var qe *Error
			if errors.As(err, &qe) && qe.Kind == KindMalformed {
				stats[state] = 0
				continue
			}
			return nil, err
		}
		stats[state] = n
	}
	return stats, nil
}

// ResolvedPattern returns the cached key pattern, or PatternUnknown if no
// key has been seen yet.
func (c *Client) ResolvedPattern() KeyPattern {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pattern
}

// Healthy reports whether Redis currently answers a ping.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// gate enforces the reconnect schedule. It returns an unavailable error
// while the next probe is still in the future, probes once when it is due,
// and clears the down state on success.
func (c *Client) gate(ctx context.Context) error {
	c.mu.Lock()
	if !c.down {
		c.mu.Unlock()
		return nil
	}
	if time.Now().Before(c.retryAt) {
		retryAt := c.retryAt
		c.mu.Unlock()
		return &Error{Kind: KindUnavailable, Err: fmt.Errorf("reconnect scheduled for %s", retryAt.Format(time.RFC3339))}
	}
	c.mu.Unlock()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.scheduleRetry(err)
		return &Error{Kind: KindUnavailable, Err: err}
	}

	c.mu.Lock()
	c.down = false
	c.attempts = 0
	c.mu.Unlock()
	c.logger.Info("reconnected to Redis")
	return nil
}

// scheduleRetry marks the client down and computes the next probe time from
// the backoff policy.
func (c *Client) scheduleRetry(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = true
	c.attempts++
	delay := c.backoff.Delay(c.attempts)
	c.retryAt = time.Now().Add(delay)
	c.logger.Warn("Redis unavailable, scheduling reconnect",
		"attempt", c.attempts, "retry_in", delay.String(), "error", err)
}

// resolvePattern probes the known key patterns in order and caches the
// first one whose wait key exists. An entirely absent queue is read with
// the newest scheme and resolved once a key appears.
func (c *Client) resolvePattern(ctx context.Context, prefix, name string) (KeyPattern, error) {
	c.mu.Lock()
	cached := c.pattern
	c.mu.Unlock()
	if cached != PatternUnknown {
		return cached, nil
	}

	for _, cand := range resolutionOrder {
		key := cand.WaitKey(prefix, name)
		n, err := c.rdb.Exists(ctx, key).Result()
		if err != nil {
			var rerr redis.Error
			if errors.As(err, &rerr) {
				c.logger.Debug("pattern probe rejected", "key", key, "error", err)
				continue
			}
			c.scheduleRetry(err)
			return PatternUnknown, &Error{Kind: KindUnavailable, Err: err}
		}
		if n > 0 {
			c.mu.Lock()
			c.pattern = cand
			c.mu.Unlock()
			c.logger.Info("resolved queue key pattern", "pattern", cand.String(), "key", key)
			return cand, nil
		}
	}

	return resolutionOrder[0], nil
}

// listLen returns the length of a list key, treating a missing key as zero.
func (c *Client) listLen(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.LLen(ctx, key).Result()
	if err == nil {
		return n, nil
	}
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	var rerr redis.Error
	if errors.As(err, &rerr) {
		return 0, &Error{Kind: KindMalformed, Err: fmt.Errorf("LLEN %s: %w", key, err)}
	}

	c.scheduleRetry(err)
	return 0, &Error{Kind: KindUnavailable, Err: fmt.Errorf("LLEN %s: %w", key, err)}
}
