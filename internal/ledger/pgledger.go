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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rag-platform/internal/pipeline"
)

// PgDurableStore implements DurableStore against the
// shared-credits/shared-credits-transactions tables, grounded
// in internal/storage/metadata's upsert-by-key repo shape and
// internal/ingestqueue/pg.go's pgxpool usage pattern.
type PgDurableStore struct {
	pool *pgxpool.Pool
}

// NewPgDurableStore wraps an already-connected pool.
func NewPgDurableStore(pool *pgxpool.Pool) *PgDurableStore {
	return &PgDurableStore{pool: pool}
}

// EnsureSchema creates the two tables if absent. Safe to call on every
// startup.
func (s *PgDurableStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS shared_credits (
	date            text PRIMARY KEY,
	credits_left    integer NOT NULL,
	created_at      timestamptz NOT NULL DEFAULT now(),
	created_by      text,
	last_updated_at timestamptz NOT NULL DEFAULT now(),
	last_updated_by text,
	comment         text
);
CREATE TABLE IF NOT EXISTS shared_credits_transactions (
	id         bigserial PRIMARY KEY,
	date       text NOT NULL,
	type       text NOT NULL,
	amount     integer NOT NULL,
	comment    text,
	ref_id     text,
	details    text,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_shared_credits_txn_date ON shared_credits_transactions(date);
`)
	if err != nil {
		return fmt.Errorf("ledger: ensure schema: %w", err)
	}
	return nil
}

func (s *PgDurableStore) UpsertPool(ctx context.Context, date string, credits int, updatedBy string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO shared_credits (date, credits_left, created_by, last_updated_by)
VALUES ($1, $2, $3, $3)
ON CONFLICT (date) DO UPDATE SET
	credits_left = EXCLUDED.credits_left,
	last_updated_at = now(),
	last_updated_by = EXCLUDED.last_updated_by
`, date, credits, updatedBy)
	return err
}

func (s *PgDurableStore) GetPool(ctx context.Context, date string) (pipeline.CreditPoolEntry, bool, error) {
	var e pipeline.CreditPoolEntry
	row := s.pool.QueryRow(ctx, `
SELECT date, credits_left, created_at, COALESCE(created_by, ''), last_updated_at, COALESCE(last_updated_by, ''), COALESCE(comment, '')
FROM shared_credits WHERE date = $1
`, date)
	err := row.Scan(&e.Date, &e.CreditsLeft, &e.CreatedAt, &e.CreatedBy, &e.LastUpdatedAt, &e.LastUpdatedBy, &e.Comment)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.CreditPoolEntry{}, false, nil
	}
	if err != nil {
		return pipeline.CreditPoolEntry{}, false, err
	}
	return e, true, nil
}

func (s *PgDurableStore) SetPoolCredits(ctx context.Context, date string, credits int, updatedBy string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE shared_credits SET credits_left = $2, last_updated_at = now(), last_updated_by = $3
WHERE date = $1
`, date, credits, updatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.UpsertPool(ctx, date, credits, updatedBy)
	}
	return nil
}

func (s *PgDurableStore) InsertTransaction(ctx context.Context, txn pipeline.CreditTransaction) error {
	createdAt := txn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO shared_credits_transactions (date, type, amount, comment, ref_id, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, txn.Date, string(txn.Type), txn.Amount, nullIfEmpty(txn.Comment), nullIfEmpty(txn.RefID), nullIfEmpty(txn.Details), createdAt)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
