package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "otp:v1:"

type redisRecord struct {
	Code      string    `json:"code"`
	Attempts  int       `json:"attempts,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisStore keeps one key per phone. SET replaces any earlier code and the
// key's TTL reaps it once expired.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore builds a Redis-backed code store. A nil clock uses time.Now.
func NewRedisStore(client *redis.Client, now func() time.Time) *RedisStore {
	return &RedisStore{client: client, now: clockOrDefault(now)}
}

// Put stores code for phone, superseding whatever was there.
func (s *RedisStore) Put(ctx context.Context, phone, code string, ttl time.Duration) (Record, error) {
	if s.client == nil {
		return Record{}, fmt.Errorf("redis client is nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now().UTC()
	rec := Record{Phone: phone, Code: code, CreatedAt: now, ExpiresAt: now.Add(ttl)}

	payload, err := json.Marshal(redisRecord{Code: rec.Code, CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt})
	if err != nil {
		return Record{}, fmt.Errorf("encode otp record: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+phone, payload, ttl).Err(); err != nil {
		return Record{}, fmt.Errorf("store otp record: %w", err)
	}
	return rec, nil
}

// ConsumeLatest deletes the phone's code only if it is still the one that was
// read; a concurrent Put wins over a stale consume. A rejection rewrites the
// record with one more attempt and keeps its TTL.
func (s *RedisStore) ConsumeLatest(ctx context.Context, phone string, match func(Record) bool) (Record, error) {
	if s.client == nil {
		return Record{}, fmt.Errorf("redis client is nil")
	}
	key := redisKeyPrefix + phone

	var out Record
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load otp record: %w", err)
		}

		var stored redisRecord
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode otp record: %w", err)
		}
		rec := Record{Phone: phone, Code: stored.Code, Attempts: stored.Attempts, CreatedAt: stored.CreatedAt, ExpiresAt: stored.ExpiresAt}
		if rec.Expired(s.now()) {
			return ErrNotFound
		}
		if match != nil && !match(rec) {
			return s.reject(ctx, tx, key, stored)
		}

		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		}); err != nil {
			return err
		}
		out = rec
		return nil
	}, key)

	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, redis.TxFailedErr):
		return Record{}, ErrNotFound
	default:
		return Record{}, err
	}
}

func (s *RedisStore) reject(ctx context.Context, tx *redis.Tx, key string, stored redisRecord) error {
	stored.Attempts++
	var payload []byte
	if stored.Attempts < MaxAttempts {
		var err error
		if payload, err = json.Marshal(stored); err != nil {
			return fmt.Errorf("encode otp record: %w", err)
		}
	}
	if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if payload == nil {
			pipe.Del(ctx, key)
		} else {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
		}
		return nil
	}); err != nil {
		return err
	}
	return ErrNotFound
}
