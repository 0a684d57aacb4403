// Package runlog keeps the summaries of recent reconciliation passes so
// operators can see what the last scheduled or manual run did.
package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/lifecycle"
)

// ErrNoRuns is returned when no pass has been recorded yet.
var ErrNoRuns = errors.New("no reconciliation runs recorded")

const (
	latestKey  = "hackathon:reconcile:last"
	historyKey = "hackathon:reconcile:history"
	historyLen = 50
)

// Store records pass summaries and returns the most recent ones.
type Store interface {
	lifecycle.Recorder
	Latest(ctx context.Context) (*lifecycle.RunResult, error)
	Recent(ctx context.Context, n int) ([]lifecycle.RunResult, error)
}

// RedisStore keeps the latest summary under one key and a capped history
// list, both expiring after ttl.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis returns a RedisStore. A non-positive ttl keeps entries forever.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Dial connects to the Redis instance at url and checks it responds.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Record(ctx context.Context, result *lifecycle.RunResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}

	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, latestKey, payload, ttl)
		p.LPush(ctx, historyKey, payload)
		p.LTrim(ctx, historyKey, 0, historyLen-1)
		if ttl > 0 {
			p.Expire(ctx, historyKey, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record run result: %w", err)
	}
	return nil
}

func (s *RedisStore) Latest(ctx context.Context) (*lifecycle.RunResult, error) {
	raw, err := s.client.Get(ctx, latestKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoRuns
		}
		return nil, fmt.Errorf("get latest run: %w", err)
	}
	var result lifecycle.RunResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode run result: %w", err)
	}
	return &result, nil
}

func (s *RedisStore) Recent(ctx context.Context, n int) ([]lifecycle.RunResult, error) {
	if n <= 0 || n > historyLen {
		n = historyLen
	}
	raws, err := s.client.LRange(ctx, historyKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	results := make([]lifecycle.RunResult, 0, len(raws))
	for _, raw := range raws {
		var r lifecycle.RunResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode run result: %w", err)
		}
		results = append(results, r)
	}
	return results, nil
}

// MemoryStore keeps summaries in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	runs []lifecycle.RunResult
}

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(_ context.Context, result *lifecycle.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append([]lifecycle.RunResult{*result}, s.runs...)
	if len(s.runs) > historyLen {
		s.runs = s.runs[:historyLen]
	}
	return nil
}

func (s *MemoryStore) Latest(_ context.Context) (*lifecycle.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil, ErrNoRuns
	}
	r := s.runs[0]
	return &r, nil
}

func (s *MemoryStore) Recent(_ context.Context, n int) ([]lifecycle.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.runs) {
		n = len(s.runs)
	}
	out := make([]lifecycle.RunResult, n)
	copy(out, s.runs[:n])
	return out, nil
}
