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

// Package queue implements the two named queues (taskQueue,
// downloaderQueue), each with its own concurrency envelope,
// lease/heartbeat renewal, and a stalled-claim sweeper. Grounded in
// internal/ingestqueue/pg.go's FOR UPDATE SKIP LOCKED claim query and
// internal/runtime/jobstore/pgstore.go's lease/heartbeat pattern,
// generalized to two named queues with idempotent enqueue by job id.
package queue

import (
	"context"
	"time"
)

// Names of the two queues the pipeline uses.
const (
	TaskQueueName       = "taskQueue"
	DownloaderQueueName = "downloaderQueue"
)

// ClaimedJob is one leased job, ready for worker execution.
type ClaimedJob struct {
	JobID      string
	Payload    []byte
	Priority   int
	EnqueuedAt time.Time
	Attempts   int
}

// Queue is the capability a worker pool needs from a named queue.
type Queue interface {
	// Enqueue inserts a job under jobID with the given priority and
	// opaque payload. A second Enqueue for a jobID already present is
	// silently ignored.
	Enqueue(ctx context.Context, jobID string, payload []byte, priority int) error
	// Claim atomically leases the highest-priority, oldest queued job
	// for leaseDuration, or returns ok=false if none are available.
	Claim(ctx context.Context, workerID string, leaseDuration time.Duration) (job *ClaimedJob, ok bool, err error)
	// Heartbeat extends a held lease. Returns ErrLeaseLost if the
	// caller no longer holds it (lease expired and was reclaimed, or
	// never existed).
	Heartbeat(ctx context.Context, workerID, jobID string, leaseDuration time.Duration) error
	// Complete removes a job after successful processing
	// (removeOnComplete=true).
	Complete(ctx context.Context, jobID string) error
	// Fail removes a job after terminal failure (removeOnFail=true —
	// auditing lives in the Job Log, not the queue).
	Fail(ctx context.Context, jobID string) error
	// ReclaimStalled requeues any job whose lease has been unrenewed
	// for longer than stalledInterval, returning how many it reclaimed.
	ReclaimStalled(ctx context.Context, stalledInterval time.Duration) (int, error)
	// Backlog returns the number of jobs currently queued or active,
	// for the system status/metrics endpoints.
	Backlog(ctx context.Context) (int, error)
}

// errString is a tiny sentinel-error helper avoiding an extra import of
// errors.New at each declaration site.
type errString string

func (e errString) Error() string { return string(e) }

// ErrLeaseLost is returned by Heartbeat when the caller's lease is gone.
const ErrLeaseLost = errString("queue: lease lost")

// ErrEmpty means "nothing claimable". Neither MemQueue nor PgQueue
// returns it: Claim reports an empty queue with ok=false and a nil error.
const ErrEmpty = errString("queue: empty")
