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

// Package priolock implements the process-wide FIFO-with-priority mutex
// the credit ledger's critical section needs: higher priority waiters
// run first; waiters of equal priority run in FIFO order. It follows
// the same discipline as a lease-fencing lock (exactly one owner of a
// critical section at a time, others block until released), adapted
// to support priority ordering among waiters.
package priolock

import (
	"container/heap"
	"context"
	"sync"
)

type waiter struct {
	priority int
	seq      uint64
	ready    chan struct{}
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority // higher priority first
	}
	return h[i].seq < h[j].seq // FIFO among equal priority
}
func (h waiterHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *waiterHeap) Push(x any)        { *h = append(*h, x.(*waiter)) }
func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Mutex is a priority-ordered mutual exclusion lock. The zero value is
// ready to use.
type Mutex struct {
	mu      sync.Mutex
	held    bool
	waiters waiterHeap
	nextSeq uint64
}

// Lock blocks until the caller holds the mutex, honoring priority order
// among other waiters (higher priority value = served first). It
// respects ctx cancellation while waiting; once granted, the caller must
// call Unlock exactly once.
func (m *Mutex) Lock(ctx context.Context, priority int) error {
	m.mu.Lock()
	if !m.held {
		m.held = true
		m.mu.Unlock()
		return nil
	}
	w := &waiter{priority: priority, seq: m.nextSeq, ready: make(chan struct{})}
	m.nextSeq++
	heap.Push(&m.waiters, w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		// Best-effort removal if we're cancelled before being granted;
		// if we were already popped and signaled, draining ready avoids
		// leaking the lock forever.
		m.mu.Lock()
		for i, other := range m.waiters {
			if other == w {
				heap.Remove(&m.waiters, i)
				m.mu.Unlock()
				return ctx.Err()
			}
		}
		m.mu.Unlock()
		select {
		case <-w.ready:
			// We were granted the lock concurrently with cancellation;
			// release it immediately since the caller is giving up.
			m.Unlock()
		default:
		}
		return ctx.Err()
	}
}

// Unlock releases the mutex, waking the highest-priority waiter (if
// any) in FIFO order among equal priorities.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.waiters.Len() == 0 {
		m.held = false
		return
	}
	next := heap.Pop(&m.waiters).(*waiter)
	close(next.ready)
}
