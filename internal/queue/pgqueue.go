// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgQueue is a Postgres-backed named queue. Two instances (one per
// queue name) share the same table.
type PgQueue struct {
	pool *pgxpool.Pool
	name string
}

// NewPgQueue builds a PgQueue for the given queue name over pool. Call
// EnsureSchema once per process before use.
func NewPgQueue(pool *pgxpool.Pool, name string) *PgQueue {
	return &PgQueue{pool: pool, name: name}
}

// EnsureSchema creates the shared backing table if absent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS queue_jobs (
	queue_name   text NOT NULL,
	job_id       text NOT NULL,
	payload      jsonb NOT NULL,
	priority     integer NOT NULL DEFAULT 0,
	status       text NOT NULL DEFAULT 'queued',
	locked_by    text,
	locked_until timestamptz,
	attempts     integer NOT NULL DEFAULT 0,
	created_at   timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (queue_name, job_id)
);
CREATE INDEX IF NOT EXISTS idx_queue_jobs_claimable ON queue_jobs(queue_name, status, priority DESC, created_at ASC);
`)
	return err
}

func (q *PgQueue) Enqueue(ctx context.Context, jobID string, payload []byte, priority int) error {
	_, err := q.pool.Exec(ctx, `
INSERT INTO queue_jobs (queue_name, job_id, payload, priority)
VALUES ($1, $2, $3, $4)
ON CONFLICT (queue_name, job_id) DO NOTHING
`, q.name, jobID, payload, priority)
	return err
}

func (q *PgQueue) Claim(ctx context.Context, workerID string, leaseDuration time.Duration) (*ClaimedJob, bool, error) {
	lockedUntil := time.Now().Add(leaseDuration)
	row := q.pool.QueryRow(ctx, `
WITH sel AS (
	SELECT job_id FROM queue_jobs
	WHERE queue_name = $1 AND status = 'queued'
	ORDER BY priority DESC, created_at ASC
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
UPDATE queue_jobs q SET status = 'active', locked_by = $2, locked_until = $3, attempts = q.attempts + 1
FROM sel WHERE q.queue_name = $1 AND q.job_id = sel.job_id
RETURNING q.job_id, q.payload, q.priority, q.created_at, q.attempts
`, q.name, workerID, lockedUntil)

	var job ClaimedJob
	err := row.Scan(&job.JobID, &job.Payload, &job.Priority, &job.EnqueuedAt, &job.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &job, true, nil
}

func (q *PgQueue) Heartbeat(ctx context.Context, workerID, jobID string, leaseDuration time.Duration) error {
	tag, err := q.pool.Exec(ctx, `
UPDATE queue_jobs SET locked_until = $4
WHERE queue_name = $1 AND job_id = $2 AND locked_by = $3 AND status = 'active'
`, q.name, jobID, workerID, time.Now().Add(leaseDuration))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (q *PgQueue) Complete(ctx context.Context, jobID string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM queue_jobs WHERE queue_name = $1 AND job_id = $2`, q.name, jobID)
	return err
}

func (q *PgQueue) Fail(ctx context.Context, jobID string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM queue_jobs WHERE queue_name = $1 AND job_id = $2`, q.name, jobID)
	return err
}

// ReclaimStalled requeues jobs whose lease (locked_until, set at claim
// or last heartbeat to now+lockDuration) has been unrenewed past
// stalledInterval — i.e. the worker holding it missed its renewal
// window and is presumed crashed.
func (q *PgQueue) ReclaimStalled(ctx context.Context, stalledInterval time.Duration) (int, error) {
	tag, err := q.pool.Exec(ctx, `
UPDATE queue_jobs SET status = 'queued', locked_by = NULL, locked_until = NULL
WHERE queue_name = $1 AND status = 'active' AND locked_until < $2
`, q.name, time.Now().Add(-stalledInterval))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (q *PgQueue) Backlog(ctx context.Context) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx, `SELECT count(*) FROM queue_jobs WHERE queue_name = $1`, q.name).Scan(&n)
	return n, err
}
