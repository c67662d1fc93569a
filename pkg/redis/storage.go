package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage is a small key/value wrapper around a go-redis client.
type Storage struct {
	db            redis.UniversalClient
	scanBatchSize int64
}

// NewStorage wraps a Redis client. Keys are scanned in batches of 1000.
func NewStorage(client redis.UniversalClient) *Storage {
	return &Storage{db: client, scanBatchSize: 1000}
}

// NewStorageWithConfig wraps a Redis client using cfg.ScanBatchSize.
func NewStorageWithConfig(client redis.UniversalClient, cfg Config) *Storage {
	s := NewStorage(client)
	if cfg.ScanBatchSize > 0 {
		s.scanBatchSize = int64(cfg.ScanBatchSize)
	}
	return s
}

// Get returns nil for empty keys and missing values.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	val, err := s.db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores key-value with expiration. Zero duration means no expiration.
func (s *Storage) Set(ctx context.Context, key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	return s.db.Set(ctx, key, val, exp).Err()
}

// Delete removes keys. Empty keys are ignored.
func (s *Storage) Delete(ctx context.Context, keys ...string) error {
	keys = nonEmpty(keys)
	if len(keys) == 0 {
		return nil
	}
	return s.db.Del(ctx, keys...).Err()
}

// DeletePrefix removes every key starting with prefix using SCAN, so Redis is
// never blocked by KEYS.
func (s *Storage) DeletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		batch, next, err := s.db.Scan(ctx, cursor, prefix+"*", s.scanBatchSize).Result()
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			if err := s.db.Unlink(ctx, batch...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close terminates the Redis connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Conn returns the underlying Redis client for advanced operations.
func (s *Storage) Conn() redis.UniversalClient {
	return s.db
}

func nonEmpty(keys []string) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
