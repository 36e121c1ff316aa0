// Package store keeps conversion job status for the HTTP API.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Job states.
const (
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

type Status struct {
	Status   string         `json:"status"`
	Progress int            `json:"progress"`
	Message  string         `json:"message"`
	Start    *time.Time     `json:"start_time,omitempty"`
	End      *time.Time     `json:"end_time,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// StatusStore persists job status by id.
type StatusStore interface {
	Set(ctx context.Context, jobID string, st Status) error
	Get(ctx context.Context, jobID string) (Status, bool, error)
}

// DefaultTTL bounds how long finished jobs remain queryable.
const DefaultTTL = 24 * time.Hour

type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStatus{client: c, keyNS: "imgconvert:job", ttl: ttl}, nil
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
	m := map[string]any{
		"status":   st.Status,
		"progress": st.Progress,
		"message":  st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, err := json.Marshal(st.Metadata)
		if err != nil {
			return fmt.Errorf("encode status metadata: %w", err)
		}
		m["metadata"] = string(b)
	}

	k := s.key(jobID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, m)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	st := Status{Status: res["status"], Message: res["message"]}
	// A malformed progress field reads as 0.
	st.Progress, _ = strconv.Atoi(res["progress"])
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st, true, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }

// MemoryStatus is a StatusStore for single-process deployments without Redis.
type MemoryStatus struct {
	mu   sync.RWMutex
	jobs map[string]Status
}

func NewMemoryStatus() *MemoryStatus {
	return &MemoryStatus{jobs: map[string]Status{}}
}

func (m *MemoryStatus) Set(_ context.Context, jobID string, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[jobID] = st
	return nil
}

func (m *MemoryStatus) Get(_ context.Context, jobID string) (Status, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.jobs[jobID]
	return st, ok, nil
}
