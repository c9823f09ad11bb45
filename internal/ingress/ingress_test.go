// Copyright 2026 fanjia1024

package ingress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-platform/internal/fastcache"
	"rag-platform/internal/ledger"
	"rag-platform/internal/ratelimit"
	pkgerrors "rag-platform/pkg/errors"
)

type fakeTaskQueue struct {
	enqueued []string
}

func (q *fakeTaskQueue) Enqueue(ctx context.Context, jobID string, payload []byte, priority int) error {
	q.enqueued = append(q.enqueued, jobID)
	return nil
}

type fakeCredits struct {
	ok  bool
	err error
}

func (c *fakeCredits) ConsumeCredits(ctx context.Context, amount int, reason, refID, details string) (bool, error) {
	return c.ok, c.err
}

func newTestIngress(rl RateLimiter, credits CreditConsumer, q TaskEnqueuer) *Ingress {
	return New(rl, credits, q)
}

func TestAdmit_HappyPath(t *testing.T) {
	rl := ratelimit.New(ratelimit.DefaultConfig())
	q := &fakeTaskQueue{}
	ig := newTestIngress(rl, &fakeCredits{ok: true}, q)

	jobID, err := ig.Admit(context.Background(), Request{
		TgUserID:    "185150",
		Tool:        "upscaleimage",
		SubmittedAt: time.Unix(1000, 0),
	})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)
	require.Len(t, q.enqueued, 1)
	assert.Equal(t, jobID, q.enqueued[0])
}

func TestAdmit_RejectsUnknownTool(t *testing.T) {
	rl := ratelimit.New(ratelimit.DefaultConfig())
	ig := newTestIngress(rl, &fakeCredits{ok: true}, &fakeTaskQueue{})

	_, err := ig.Admit(context.Background(), Request{TgUserID: "1", Tool: "bogus"})
	require.Error(t, err)
}

func TestAdmit_RateLimitedHasNoSideEffects(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.MaxAttempt = 1
	rl := ratelimit.New(cfg)
	credits := &fakeCredits{ok: true}
	q := &fakeTaskQueue{}
	ig := newTestIngress(rl, credits, q)

	_, err := ig.Admit(context.Background(), Request{TgUserID: "1", Tool: "compress", SubmittedAt: time.Unix(1, 0)})
	require.NoError(t, err)

	_, err = ig.Admit(context.Background(), Request{TgUserID: "1", Tool: "compress", SubmittedAt: time.Unix(2, 0)})
	require.ErrorIs(t, err, pkgerrors.ErrRateLimited)
	assert.Len(t, q.enqueued, 1, "second, rejected attempt must not enqueue")
}

func TestAdmit_OutOfQuota(t *testing.T) {
	rl := ratelimit.New(ratelimit.DefaultConfig())
	q := &fakeTaskQueue{}
	ig := newTestIngress(rl, &fakeCredits{ok: false}, q)

	_, err := ig.Admit(context.Background(), Request{TgUserID: "1", Tool: "merge"})
	require.ErrorIs(t, err, pkgerrors.ErrOutOfQuota)
	assert.Len(t, q.enqueued, 0)
}

func TestAdmit_RequiresExactlyOneIdentity(t *testing.T) {
	rl := ratelimit.New(ratelimit.DefaultConfig())
	ig := newTestIngress(rl, &fakeCredits{ok: true}, &fakeTaskQueue{})

	_, err := ig.Admit(context.Background(), Request{Tool: "compress"})
	require.Error(t, err)

	_, err = ig.Admit(context.Background(), Request{UserID: "u1", TgUserID: "1", Tool: "compress"})
	require.Error(t, err)
}

func TestAdmit_WithRealLedger(t *testing.T) {
	l, _ := newRealLedger()
	rl := ratelimit.New(ratelimit.DefaultConfig())
	q := &fakeTaskQueue{}
	ig := newTestIngress(rl, l, q)

	jobID, err := ig.Admit(context.Background(), Request{TgUserID: "9", Tool: "upscaleimage", SubmittedAt: time.Unix(42, 0)})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)
}

func newRealLedger() (*ledger.Ledger, *ledger.MemDurableStore) {
	durable := ledger.NewMemDurableStore()
	fast := fastcache.NewMemoryStore()
	return ledger.New(fast, durable, 0), durable
}
