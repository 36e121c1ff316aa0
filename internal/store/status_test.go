package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func exerciseStore(t *testing.T, s StatusStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Second)
	in := Status{
		Status:   StatusComplete,
		Progress: 100,
		Message:  "2 of 2 files converted",
		Start:    &start,
		End:      &end,
		Metadata: map[string]any{"format": "png", "files": float64(2)},
	}
	require.NoError(t, s.Set(ctx, "job-1", in))

	got, ok, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in.Status, got.Status)
	assert.Equal(t, in.Progress, got.Progress)
	assert.Equal(t, in.Message, got.Message)
	require.NotNil(t, got.Start)
	assert.True(t, start.Equal(*got.Start))
	assert.True(t, end.Equal(*got.End))
	assert.Equal(t, in.Metadata, got.Metadata)
}

func TestMemoryStatus(t *testing.T) {
	m := NewMemoryStatus()
	exerciseStore(t, m)
}

func TestRedisStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a Redis container")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := NewRedisStatus(url, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Ping(ctx))
	exerciseStore(t, s)

	ttl, err := s.client.TTL(ctx, s.key("job-1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestNewRedisStatusBadURL(t *testing.T) {
	_, err := NewRedisStatus("not a url", 0)
	assert.Error(t, err)
}
