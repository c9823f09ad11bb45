// Copyright 2026 fanjia1024
// Integration tests for the Postgres-backed queue. Skipped unless
// TEST_QUEUE_DSN is set.

package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQueueDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_QUEUE_DSN")
	if dsn == "" {
		t.Skip("TEST_QUEUE_DSN not set; skipping Postgres queue integration test")
	}
	return dsn
}

func newTestPgQueue(t *testing.T, name string) *PgQueue {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testQueueDSN(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, EnsureSchema(ctx, pool))
	_, err = pool.Exec(ctx, `DELETE FROM queue_jobs WHERE queue_name = $1`, name)
	require.NoError(t, err)
	return NewPgQueue(pool, name)
}

func TestPgQueue_EnqueueClaimCompleteLifecycle(t *testing.T) {
	ctx := context.Background()
	q := newTestPgQueue(t, "pg-test-task")

	require.NoError(t, q.Enqueue(ctx, "job-1", []byte(`{"tool":"upscale_image"}`), 0))

	n, err := q.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	claimed, ok, err := q.Claim(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "job-1", claimed.JobID)
	assert.Equal(t, 1, claimed.Attempts)

	require.NoError(t, q.Heartbeat(ctx, "worker-1", "job-1", time.Minute))
	require.NoError(t, q.Complete(ctx, "job-1"))

	n, err = q.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPgQueue_EnqueueIsIdempotentByJobID(t *testing.T) {
	ctx := context.Background()
	q := newTestPgQueue(t, "pg-test-idempotent")

	require.NoError(t, q.Enqueue(ctx, "job-dup", []byte(`{}`), 0))
	require.NoError(t, q.Enqueue(ctx, "job-dup", []byte(`{}`), 0))

	n, err := q.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPgQueue_HeartbeatFailsAfterLeaseLost(t *testing.T) {
	ctx := context.Background()
	q := newTestPgQueue(t, "pg-test-lease")

	require.NoError(t, q.Enqueue(ctx, "job-2", []byte(`{}`), 0))
	_, ok, err := q.Claim(ctx, "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = q.Heartbeat(ctx, "worker-b", "job-2", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseLost)
}

func TestPgQueue_ReclaimStalledRequeuesUnrenewedLease(t *testing.T) {
	ctx := context.Background()
	q := newTestPgQueue(t, "pg-test-stalled")

	require.NoError(t, q.Enqueue(ctx, "job-3", []byte(`{}`), 0))
	_, ok, err := q.Claim(ctx, "worker-c", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	n, err := q.ReclaimStalled(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	claimed, ok, err := q.Claim(ctx, "worker-d", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "job-3", claimed.JobID)
	assert.Equal(t, 2, claimed.Attempts)
}

func TestPgQueue_FailRemovesJob(t *testing.T) {
	ctx := context.Background()
	q := newTestPgQueue(t, "pg-test-fail")

	require.NoError(t, q.Enqueue(ctx, "job-4", []byte(`{}`), 0))
	_, ok, err := q.Claim(ctx, "worker-e", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, q.Fail(ctx, "job-4"))

	n, err := q.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
