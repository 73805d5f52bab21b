package config

// Redis backs the rate limiter and the admin response cache.  Both degrade
// to pass-through when Redis is unreachable, so a failed connection is
// reported but never fatal.

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions builds client options from the environment:
//
//	REDIS_ADDR      host:port (default localhost:6379)
//	REDIS_HOST/PORT override REDIS_ADDR when both are set
//	REDIS_PASSWORD  optional password
//	REDIS_DB        database number (default 0)
//	REDIS_TLS       enable TLS
func RedisOptions() *redis.Options {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
		addr = host + ":" + port
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: envStr("REDIS_PASSWORD", ""),
		DB:       envInt("REDIS_DB", 0),
	}
	if envBool("REDIS_TLS", false) {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// NewRedisClient connects with RedisOptions and pings the server.  On
// failure the client is closed and the error returned.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	opts := RedisOptions()
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}
	return client, nil
}
