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
	"sort"
	"sync"
	"time"
)

type memJob struct {
	id          string
	payload     []byte
	priority    int
	enqueuedAt  time.Time
	attempts    int
	active      bool
	lockedBy    string
	lockedUntil time.Time
}

// MemQueue is an in-process Queue for tests and standalone operation,
// implementing the same claim/heartbeat/sweep semantics as PgQueue.
type MemQueue struct {
	mu   sync.Mutex
	jobs map[string]*memJob
	now  func() time.Time
}

func NewMemQueue() *MemQueue {
	return &MemQueue{jobs: make(map[string]*memJob), now: time.Now}
}

func (q *MemQueue) Enqueue(ctx context.Context, jobID string, payload []byte, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.jobs[jobID]; exists {
		return nil
	}
	q.jobs[jobID] = &memJob{id: jobID, payload: payload, priority: priority, enqueuedAt: q.now()}
	return nil
}

func (q *MemQueue) Claim(ctx context.Context, workerID string, leaseDuration time.Duration) (*ClaimedJob, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var candidates []*memJob
	for _, j := range q.jobs {
		if !j.active {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].priority != candidates[k].priority {
			return candidates[i].priority > candidates[k].priority
		}
		return candidates[i].enqueuedAt.Before(candidates[k].enqueuedAt)
	})
	j := candidates[0]
	j.active = true
	j.lockedBy = workerID
	j.lockedUntil = q.now().Add(leaseDuration)
	j.attempts++
	return &ClaimedJob{JobID: j.id, Payload: j.payload, Priority: j.priority, EnqueuedAt: j.enqueuedAt, Attempts: j.attempts}, true, nil
}

func (q *MemQueue) Heartbeat(ctx context.Context, workerID, jobID string, leaseDuration time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok || !j.active || j.lockedBy != workerID {
		return ErrLeaseLost
	}
	j.lockedUntil = q.now().Add(leaseDuration)
	return nil
}

func (q *MemQueue) Complete(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, jobID)
	return nil
}

func (q *MemQueue) Fail(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, jobID)
	return nil
}

func (q *MemQueue) ReclaimStalled(ctx context.Context, stalledInterval time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	threshold := q.now().Add(-stalledInterval)
	n := 0
	for _, j := range q.jobs {
		if j.active && j.lockedUntil.Before(threshold) {
			j.active = false
			j.lockedBy = ""
			j.lockedUntil = time.Time{}
			n++
		}
	}
	return n, nil
}

func (q *MemQueue) Backlog(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs), nil
}
