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

// Package ledger is the Shared Credit Ledger: a daily pool
// of processing credits, atomically allocated across all users, kept
// consistent between a fast in-memory store and a durable database of
// record. All four mutating operations serialize through a single
// priority mutex (internal/ledger/priolock): init/compare=3, refund=2,
// consume=1, read=0.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	pkgerrors "rag-platform/pkg/errors"

	"rag-platform/internal/fastcache"
	"rag-platform/internal/ledger/priolock"
	"rag-platform/internal/pipeline"
)

// DailyLimit is the default daily shared-credit allocation.
const DailyLimit = 70

const fastKeyPrefix = "sharedCredits:"
const fastKeyTTL = 24 * time.Hour

func fastKey(date string) string { return fastKeyPrefix + date }

// DurableStore is the relational capability the ledger needs: upsert of
// the per-day pool row, point reads of it, and an append-only
// transaction log. Implemented by internal/ledger/pgledger.go (Postgres)
// and internal/ledger/memdurable.go (tests).
type DurableStore interface {
	UpsertPool(ctx context.Context, date string, credits int, updatedBy string) error
	GetPool(ctx context.Context, date string) (pipeline.CreditPoolEntry, bool, error)
	SetPoolCredits(ctx context.Context, date string, credits int, updatedBy string) error
	InsertTransaction(ctx context.Context, txn pipeline.CreditTransaction) error
}

// CompareResult is compareCreditsLeft's diagnostic reconciliation
// snapshot.
type CompareResult struct {
	Fast    *int `json:"fast"`
	Durable *int `json:"durable"`
	Diff    int  `json:"diff"`
	Equal   bool `json:"equal"`
}

// Priority levels for the ledger's priority mutex.
const (
	prioInitCompare = 3
	prioRefund      = 2
	prioConsume     = 1
	prioRead        = 0
)

// Ledger implements the C1 contract.
type Ledger struct {
	fast       fastcache.Store
	durable    DurableStore
	mu         priolock.Mutex
	dailyLimit int
	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// New builds a Ledger over the given fast and durable stores. A
// non-positive dailyLimit falls back to DailyLimit.
func New(fast fastcache.Store, durable DurableStore, dailyLimit int) *Ledger {
	if dailyLimit <= 0 {
		dailyLimit = DailyLimit
	}
	return &Ledger{fast: fast, durable: durable, dailyLimit: dailyLimit, now: time.Now}
}

func (l *Ledger) today() string {
	return pipeline.DateKey(l.now())
}

// GetCreditsLeft returns today's remaining credits. Preference order:
// fast store; else durable store (populating the fast store with a
// 24-hour expiry); else, if shouldInit, initialize to the configured
// daily limit and return it; else return (0, false, nil).
func (l *Ledger) GetCreditsLeft(ctx context.Context, shouldInit bool) (int, bool, error) {
	if err := l.mu.Lock(ctx, prioRead); err != nil {
		return 0, false, err
	}
	defer l.mu.Unlock()
	return l.getCreditsLeftLocked(ctx, shouldInit)
}

func (l *Ledger) getCreditsLeftLocked(ctx context.Context, shouldInit bool) (int, bool, error) {
	date := l.today()
	if v, err := l.fast.Get(ctx, fastKey(date)); err == nil {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			return 0, false, fmt.Errorf("ledger: corrupt fast-store value %q: %w", v, perr)
		}
		return n, true, nil
	} else if err != fastcache.ErrMiss {
		return 0, false, err
	}

	if entry, found, err := l.durable.GetPool(ctx, date); err != nil {
		return 0, false, err
	} else if found {
		if err := l.fast.Set(ctx, fastKey(date), strconv.Itoa(entry.CreditsLeft), fastKeyTTL); err != nil {
			return 0, false, err
		}
		return entry.CreditsLeft, true, nil
	}

	if !shouldInit {
		return 0, false, nil
	}
	if err := l.initDailyCreditsLocked(ctx, 0, "system"); err != nil {
		return 0, false, err
	}
	return l.dailyLimit, true, nil
}

// InitDailyCredits upserts today's row with amount when it is a
// positive integer, else the configured daily limit, writes the
// fast-store key with a 24-hour expiry, and appends an init
// transaction. If the durable upsert fails, the fast store is left
// untouched.
func (l *Ledger) InitDailyCredits(ctx context.Context, amount int, updatedBy string) error {
	if err := l.mu.Lock(ctx, prioInitCompare); err != nil {
		return err
	}
	defer l.mu.Unlock()
	return l.initDailyCreditsLocked(ctx, amount, updatedBy)
}

func (l *Ledger) initDailyCreditsLocked(ctx context.Context, amount int, updatedBy string) error {
	credits := l.dailyLimit
	if amount > 0 {
		credits = amount
	}
	date := l.today()
	if err := l.durable.UpsertPool(ctx, date, credits, updatedBy); err != nil {
		return fmt.Errorf("ledger: upsert pool: %w", err)
	}
	if err := l.fast.Set(ctx, fastKey(date), strconv.Itoa(credits), fastKeyTTL); err != nil {
		return fmt.Errorf("ledger: write fast store: %w", err)
	}
	return l.durable.InsertTransaction(ctx, pipeline.CreditTransaction{
		Date:      date,
		Type:      pipeline.TxnInit,
		Amount:    credits,
		Comment:   "initDailyCredits",
		CreatedAt: l.now(),
	})
}

// ConsumeCredits atomically attempts to decrement today's pool by
// amount. Returns true if the post-decrement value is ≥ 0; otherwise it
// compensates with an equal-magnitude increment and returns false.
// amount must be a non-negative integer (0 is a valid, balance-neutral
// no-op, and still logs a transaction).
func (l *Ledger) ConsumeCredits(ctx context.Context, amount int, reason, refID, details string) (bool, error) {
	if amount < 0 {
		return false, pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "ledger: consume amount must be non-negative")
	}
	if err := l.mu.Lock(ctx, prioConsume); err != nil {
		return false, err
	}
	defer l.mu.Unlock()

	date := l.today()
	// Ensure today's pool exists in the fast store before racing the
	// decrement against it.
	if _, _, err := l.getCreditsLeftLocked(ctx, true); err != nil {
		return false, err
	}

	newVal, err := l.fast.DecrBy(ctx, fastKey(date), int64(amount))
	if err != nil {
		return false, err
	}
	if newVal < 0 {
		if _, cerr := l.fast.IncrBy(ctx, fastKey(date), int64(amount)); cerr != nil {
			return false, cerr
		}
		return false, nil
	}

	if err := l.durable.SetPoolCredits(ctx, date, int(newVal), reason); err != nil {
		// Durable write failure is returned to the caller alongside true,
		// not rolled back: the fast store already reflects the decrement. The transaction row still records
		// intent so compareCreditsLeft can catch drift.
		_ = l.durable.InsertTransaction(ctx, pipeline.CreditTransaction{
			Date: date, Type: pipeline.TxnConsume, Amount: amount,
			Comment: reason, RefID: refID, Details: details, CreatedAt: l.now(),
		})
		return true, fmt.Errorf("ledger: durable mirror failed (credits already consumed): %w", err)
	}
	if err := l.durable.InsertTransaction(ctx, pipeline.CreditTransaction{
		Date: date, Type: pipeline.TxnConsume, Amount: amount,
		Comment: reason, RefID: refID, Details: details, CreatedAt: l.now(),
	}); err != nil {
		return true, fmt.Errorf("ledger: transaction log failed (credits already consumed): %w", err)
	}
	return true, nil
}

// RefundCredits increments today's pool by amount. A no-op if today's
// key is absent in the fast store — the pool was never initialized
// today, so there is nothing to refund into.
func (l *Ledger) RefundCredits(ctx context.Context, amount int, reason string) error {
	if amount < 0 {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "ledger: refund amount must be non-negative")
	}
	if err := l.mu.Lock(ctx, prioRefund); err != nil {
		return err
	}
	defer l.mu.Unlock()

	date := l.today()
	exists, err := l.fast.Exists(ctx, fastKey(date))
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	newVal, err := l.fast.IncrBy(ctx, fastKey(date), int64(amount))
	if err != nil {
		return err
	}
	if err := l.durable.SetPoolCredits(ctx, date, int(newVal), reason); err != nil {
		return fmt.Errorf("ledger: durable mirror failed (credits already refunded): %w", err)
	}
	return l.durable.InsertTransaction(ctx, pipeline.CreditTransaction{
		Date: date, Type: pipeline.TxnRefund, Amount: amount,
		Comment: reason, CreatedAt: l.now(),
	})
}

// CompareCreditsLeft is a read-only reconciliation snapshot; it never
// mutates either store.
func (l *Ledger) CompareCreditsLeft(ctx context.Context) (CompareResult, error) {
	if err := l.mu.Lock(ctx, prioInitCompare); err != nil {
		return CompareResult{}, err
	}
	defer l.mu.Unlock()

	date := l.today()
	var result CompareResult

	if v, err := l.fast.Get(ctx, fastKey(date)); err == nil {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			return CompareResult{}, fmt.Errorf("ledger: corrupt fast-store value %q: %w", v, perr)
		}
		result.Fast = &n
	} else if err != fastcache.ErrMiss {
		return CompareResult{}, err
	}

	entry, found, err := l.durable.GetPool(ctx, date)
	if err != nil {
		return CompareResult{}, err
	}
	if found {
		d := entry.CreditsLeft
		result.Durable = &d
	}

	switch {
	case result.Fast != nil && result.Durable != nil:
		result.Diff = *result.Fast - *result.Durable
		result.Equal = result.Diff == 0
	case result.Fast == nil && result.Durable == nil:
		result.Equal = true
	default:
		result.Equal = false
	}
	return result, nil
}
