// Copyright 2026 fanjia1024
// Integration tests for the Postgres-backed durable store. Skipped
// unless TEST_LEDGER_DSN is set, mirroring
// internal/runtime/jobstore/pgstore_test.go's testDSN(t) pattern.

package ledger

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"rag-platform/internal/pipeline"
)

func testLedgerDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_LEDGER_DSN")
	if dsn == "" {
		t.Skip("TEST_LEDGER_DSN not set; skipping Postgres ledger integration test")
	}
	return dsn
}

func newTestPgDurableStore(t *testing.T) *PgDurableStore {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testLedgerDSN(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewPgDurableStore(pool)
	require.NoError(t, store.EnsureSchema(ctx))
	_, err = pool.Exec(ctx, `TRUNCATE shared_credits, shared_credits_transactions`)
	require.NoError(t, err)
	return store
}

func TestPgDurableStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestPgDurableStore(t)

	require.NoError(t, store.UpsertPool(ctx, "2026-07-31", 70, "seed"))
	entry, found, err := store.GetPool(ctx, "2026-07-31")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 70, entry.CreditsLeft)

	require.NoError(t, store.SetPoolCredits(ctx, "2026-07-31", 50, "consume"))
	entry, found, err = store.GetPool(ctx, "2026-07-31")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 50, entry.CreditsLeft)
}

func TestPgDurableStore_InsertTransaction(t *testing.T) {
	ctx := context.Background()
	store := newTestPgDurableStore(t)
	require.NoError(t, store.UpsertPool(ctx, "2026-07-31", 70, "seed"))

	require.NoError(t, store.InsertTransaction(ctx, pipeline.CreditTransaction{
		Date: "2026-07-31", Type: pipeline.TxnConsume, Amount: 20, RefID: "fp-1",
	}))
}

func TestPgDurableStore_GetMissingDate(t *testing.T) {
	ctx := context.Background()
	store := newTestPgDurableStore(t)
	_, found, err := store.GetPool(ctx, "1999-01-01")
	require.NoError(t, err)
	require.False(t, found)
}
