package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrInvalidRedisURL indicates an unparseable connection URL.
	ErrInvalidRedisURL = errors.New("failed to parse redis connection string")

	// ErrRedisNotReady indicates Redis did not become reachable within
	// the connect timeout.
	ErrRedisNotReady = errors.New("redis did not become ready within the given time period")
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the connection string, e.g. "redis://:password@localhost:6379/0".
	URL string `koanf:"url"`

	// RetryAttempts is the number of connection attempts.
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryInterval is the wait between connection attempts.
	RetryInterval time.Duration `koanf:"retry_interval"`

	// ConnectTimeout bounds the whole connection phase.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *RedisConfig) ApplyDefaults() {
	if c.URL == "" {
		c.URL = "redis://localhost:6379/0"
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 5 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
}

// Connect establishes a Redis connection, retrying until the server
// answers a ping or attempts run out.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg.ApplyDefaults()

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrInvalidRedisURL, err)
	}

	for range cfg.RetryAttempts {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrRedisNotReady
}
