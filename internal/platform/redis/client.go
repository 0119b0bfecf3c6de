package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"certify/internal/platform/config"
)

var (
	poolTotalConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "certify_redis_pool_total_conns",
		Help: "Number of total connections in the Redis pool",
	})
	poolIdleConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "certify_redis_pool_idle_conns",
		Help: "Number of idle connections in the Redis pool",
	})
	poolTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "certify_redis_pool_timeouts_total",
		Help: "Number of times a Redis connection could not be obtained in time",
	})
)

// Client wraps the go-redis client with health checking.
type Client struct {
	*redis.Client
	lastTimeouts uint32
}

// New connects to Redis. Returns nil when no URL is configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RecordPoolStats publishes pool statistics. Call it periodically.
func (c *Client) RecordPoolStats() {
	stats := c.PoolStats()
	poolTotalConns.Set(float64(stats.TotalConns))
	poolIdleConns.Set(float64(stats.IdleConns))
	if stats.Timeouts > c.lastTimeouts {
		poolTimeouts.Add(float64(stats.Timeouts - c.lastTimeouts))
	}
	c.lastTimeouts = stats.Timeouts
}
