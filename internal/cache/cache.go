// Package cache stores generated answers keyed by ingest scope and question.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is an answer cache. scope identifies one ingested corpus; answers
// from other scopes are never returned.
type Cache interface {
	Get(ctx context.Context, scope, question string) (string, bool, error)
	Set(ctx context.Context, scope, question, answer string) error
	Close() error
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string, string) (string, bool, error) { return "", false, nil }
func (Noop) Set(context.Context, string, string, string) error         { return nil }
func (Noop) Close() error                                                { return nil }

// Redis keeps answers in Redis with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisWithClient(client, cfg.TTL), nil
}

func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{client: client, ttl: ttl, prefix: "ragchat:answer:"}
}

func (r *Redis) Get(ctx context.Context, scope, question string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(scope, question)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, scope, question, answer string) error {
	return r.client.Set(ctx, r.key(scope, question), answer, r.ttl).Err()
}

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) key(scope, question string) string {
	return r.prefix + scope + ":" + Fingerprint(question)
}

// Fingerprint normalizes case and whitespace before hashing, so trivially
// different spellings of a question share an entry.
func Fingerprint(question string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	h := sha1.Sum([]byte(norm))
	return hex.EncodeToString(h[:])
}
