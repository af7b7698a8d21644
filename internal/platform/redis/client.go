package redis

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"compliance/internal/platform/config"
)

// Client wraps the go-redis client with health checking capabilities.
type Client struct {
	*redis.Client
	metrics   *poolMetrics
	lastStats *redis.PoolStats
}

type poolMetrics struct {
	totalConns prometheus.Gauge
	idleConns  prometheus.Gauge
	timeouts   prometheus.Counter
}

// New creates a new Redis client from the provided configuration.
// Returns nil if the URL is empty (Redis not configured).
func New(cfg config.RedisConfig, reg prometheus.Registerer) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	c := &Client{Client: client}
	if reg != nil {
		f := promauto.With(reg)
		c.metrics = &poolMetrics{
			totalConns: f.NewGauge(prometheus.GaugeOpts{
				Name: "compliance_redis_pool_total_conns",
				Help: "Number of total connections in the pool",
			}),
			idleConns: f.NewGauge(prometheus.GaugeOpts{
				Name: "compliance_redis_pool_idle_conns",
				Help: "Number of idle connections in the pool",
			}),
			timeouts: f.NewCounter(prometheus.CounterOpts{
				Name: "compliance_redis_pool_timeouts_total",
				Help: "Number of times a connection was not obtained due to timeout",
			}),
		}
	}
	return c, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RecordPoolStats copies pool statistics into Prometheus. Call periodically.
func (c *Client) RecordPoolStats() {
	if c.metrics == nil {
		return
	}
	stats := c.PoolStats()
	c.metrics.totalConns.Set(float64(stats.TotalConns))
	c.metrics.idleConns.Set(float64(stats.IdleConns))
	if c.lastStats == nil {
		c.metrics.timeouts.Add(float64(stats.Timeouts))
	} else if stats.Timeouts > c.lastStats.Timeouts {
		c.metrics.timeouts.Add(float64(stats.Timeouts - c.lastStats.Timeouts))
	}
	c.lastStats = stats
}
