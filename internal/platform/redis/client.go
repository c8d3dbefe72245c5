// Package redis opens the shared connection behind the per-case lease and the
// customer profile cache.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"kycgate/internal/platform/config"
)

const pingTimeout = 2 * time.Second

type Client struct {
	*redis.Client
}

// New returns nil, nil when no URL is configured. The server then keeps case
// locks in process and fetches profiles uncached.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.ClientName = "kycgate"
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	c := &Client{Client: redis.NewClient(opts)}
	if err := c.Health(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return c, nil
}

// Health pings with a short deadline so readiness probes never hang.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.Ping(ctx).Err()
}

// RegisterPoolMetrics exports connection pool statistics on reg.
func (c *Client) RegisterPoolMetrics(reg prometheus.Registerer) error {
	stat := func(read func(*redis.PoolStats) uint32) func() float64 {
		return func() float64 { return float64(read(c.PoolStats())) }
	}
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "kyc_redis_pool_connections",
			Help: "Open connections in the Redis pool",
		}, stat(func(s *redis.PoolStats) uint32 { return s.TotalConns })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "kyc_redis_pool_idle_connections",
			Help: "Idle connections in the Redis pool",
		}, stat(func(s *redis.PoolStats) uint32 { return s.IdleConns })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "kyc_redis_pool_timeouts_total",
			Help: "Times a caller waited too long for a pooled connection",
		}, stat(func(s *redis.PoolStats) uint32 { return s.Timeouts })),
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return fmt.Errorf("register redis pool metric: %w", err)
		}
	}
	return nil
}
