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

package ledger

import (
	"context"
	"sync"
	"time"

	"rag-platform/internal/pipeline"
)

// MemDurableStore is an in-process DurableStore for tests and for
// standalone/dev operation without a Postgres instance.
type MemDurableStore struct {
	mu   sync.Mutex
	pool map[string]pipeline.CreditPoolEntry
	txns []pipeline.CreditTransaction
}

func NewMemDurableStore() *MemDurableStore {
	return &MemDurableStore{pool: make(map[string]pipeline.CreditPoolEntry)}
}

func (s *MemDurableStore) UpsertPool(ctx context.Context, date string, credits int, updatedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	e, exists := s.pool[date]
	if !exists {
		e = pipeline.CreditPoolEntry{Date: date, CreatedAt: now, CreatedBy: updatedBy}
	}
	e.CreditsLeft = credits
	e.LastUpdatedAt = now
	e.LastUpdatedBy = updatedBy
	s.pool[date] = e
	return nil
}

func (s *MemDurableStore) GetPool(ctx context.Context, date string) (pipeline.CreditPoolEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pool[date]
	return e, ok, nil
}

func (s *MemDurableStore) SetPoolCredits(ctx context.Context, date string, credits int, updatedBy string) error {
	return s.UpsertPool(ctx, date, credits, updatedBy)
}

func (s *MemDurableStore) InsertTransaction(ctx context.Context, txn pipeline.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	txn.ID = int64(len(s.txns) + 1)
	s.txns = append(s.txns, txn)
	return nil
}

// Transactions returns a copy of the appended transaction log, for
// assertions in tests.
func (s *MemDurableStore) Transactions() []pipeline.CreditTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pipeline.CreditTransaction, len(s.txns))
	copy(out, s.txns)
	return out
}
