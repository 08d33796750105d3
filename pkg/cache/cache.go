// Package cache keeps rendered public bulletin payloads in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ottoseguridad_backend/pkg/logger"
)

const (
	KeyLatest       = "bulletins:latest"
	KeyListPrefix   = "bulletins:list:"
	keyBulletinDate = "bulletins:date:"
)

func BulletinKey(date string) string {
	return keyBulletinDate + date
}

func ListKey(page, limit int) string {
	return fmt.Sprintf("%s%d:%d", KeyListPrefix, page, limit)
}

// Service is a JSON cache. A Service without a client is a no-op, so callers
// never need to check whether Redis is configured.
type Service struct {
	client *redis.Client
	ttl    time.Duration
}

var Default = &Service{}

// Connect parses a redis:// URL and pings the server. An empty URL yields the
// no-op service.
func Connect(ctx context.Context, url string, ttl time.Duration) (*Service, error) {
	if url == "" {
		return &Service{}, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Log.Info("connected to redis", "addr", opt.Addr)
	return New(client, ttl), nil
}

func New(client *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{client: client, ttl: ttl}
}

func (s *Service) Enabled() bool {
	return s != nil && s.client != nil
}

// GetJSON decodes the cached value into v. It reports false on a miss, when
// disabled, or when Redis fails; failures are logged, not returned.
func (s *Service) GetJSON(ctx context.Context, key string, v interface{}) bool {
	if !s.Enabled() {
		return false
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		logger.Log.Warn("cache get failed", "key", key, "err", err)
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		logger.Log.Warn("cache entry is not valid JSON", "key", key, "err", err)
		return false
	}
	return true
}

func (s *Service) SetJSON(ctx context.Context, key string, v interface{}) {
	if !s.Enabled() {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Log.Warn("cache marshal failed", "key", key, "err", err)
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		logger.Log.Warn("cache set failed", "key", key, "err", err)
	}
}

func (s *Service) Delete(ctx context.Context, keys ...string) {
	if !s.Enabled() || len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		logger.Log.Warn("cache delete failed", "keys", keys, "err", err)
	}
}

// InvalidateBulletin drops every public payload that may include the bulletin.
func (s *Service) InvalidateBulletin(ctx context.Context, date string) {
	if !s.Enabled() {
		return
	}
	keys := []string{KeyLatest, BulletinKey(date)}
	iter := s.client.Scan(ctx, 0, KeyListPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.Log.Warn("cache scan failed", "err", err)
	}
	s.Delete(ctx, keys...)
}

func (s *Service) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Close()
}
