package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestNewQueue(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "billing_runs")

	assert.NotNil(t, q)
	assert.Equal(t, "billing_runs", q.queueName)
}

func TestQueue_PushPop(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "billing_runs")
	ctx := context.Background()
	requestedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	err := q.Push(ctx, &RunMessage{
		RunID:       "run-1",
		TenantID:    "tenant-1",
		RequestedBy: "admin",
		RequestedAt: requestedAt,
	})
	require.NoError(t, err)

	result, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "tenant-1", result.TenantID)
	assert.Equal(t, "admin", result.RequestedBy)
	assert.True(t, requestedAt.Equal(result.RequestedAt))
}

func TestQueue_FIFO(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "billing_runs")
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, &RunMessage{RunID: id}))
	}

	for _, id := range []string{"a", "b", "c"} {
		result, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, id, result.RunID)
	}
}

func TestQueue_PopEmpty(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "billing_runs_empty")

	result, err := q.Pop(context.Background(), 10*time.Millisecond)
	// miniredis 对 BRPOP 超时的支持有限，只检查无结果
	if err == nil {
		assert.Nil(t, result)
	}
}

func TestQueue_PopMalformed(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	q := NewQueue(client, "billing_runs")
	require.NoError(t, client.LPush(ctx, "billing_runs", "not json").Err())

	_, err := q.Pop(ctx, time.Second)
	assert.Error(t, err)
}

func TestQueue_Length(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "billing_runs")
	ctx := context.Background()

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(ctx, &RunMessage{}))
	}

	length, err = q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), length)

	_, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)

	length, err = q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}
