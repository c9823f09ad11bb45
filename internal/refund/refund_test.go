// Copyright 2026 fanjia1024

package refund

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-platform/internal/notify"
	"rag-platform/internal/pipeline"
	"rag-platform/pkg/log"
)

type fakeLedger struct {
	calls []struct {
		amount int
		reason string
	}
	err error
}

func (f *fakeLedger) RefundCredits(ctx context.Context, amount int, reason string) error {
	f.calls = append(f.calls, struct {
		amount int
		reason string
	}{amount, reason})
	return f.err
}

type fakeNotifier struct {
	notifyErr     error
	failureCalls  int
	lastTgUserID  string
	lastReason    string
}

func (f *fakeNotifier) NotifyProcessing(ctx context.Context, tgUserID, jobID string, tool pipeline.Tool) error {
	return nil
}
func (f *fakeNotifier) NotifyTrackingFailure(ctx context.Context, tgUserID, jobID string) error {
	return nil
}
func (f *fakeNotifier) DeliverArtifact(ctx context.Context, tgUserID, jobID string, fileKind pipeline.FileType, urls []string, downloadFilename string, followups []notify.FollowupAction) error {
	return nil
}
func (f *fakeNotifier) NotifyFailure(ctx context.Context, tgUserID, jobID string, reason string) error {
	f.failureCalls++
	f.lastTgUserID = tgUserID
	f.lastReason = reason
	return f.notifyErr
}

func newLogger(t *testing.T) *log.Logger {
	t.Helper()
	l, err := log.NewLogger(nil)
	require.NoError(t, err)
	return l
}

func TestHandle_RefundsAndNotifies(t *testing.T) {
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}
	s := New(ledger, notifier, newLogger(t))

	err := s.Handle(context.Background(), "job1", "tg1", "task-failed", 20, "external error")
	require.NoError(t, err)

	require.Len(t, ledger.calls, 1)
	assert.Equal(t, 20, ledger.calls[0].amount)
	assert.Equal(t, "task-failed", ledger.calls[0].reason)
	assert.Equal(t, 1, notifier.failureCalls)
	assert.Equal(t, "tg1", notifier.lastTgUserID)
}

func TestHandle_SkipsNotifyWhenNoTelegramUser(t *testing.T) {
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}
	s := New(ledger, notifier, newLogger(t))

	err := s.Handle(context.Background(), "job1", "", "task-failed", 20, "external error")
	require.NoError(t, err)
	assert.Equal(t, 0, notifier.failureCalls)
}

func TestHandle_SkipsRefundWhenPriceZero(t *testing.T) {
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}
	s := New(ledger, notifier, newLogger(t))

	err := s.Handle(context.Background(), "job1", "tg1", "task-failed", 0, "external error")
	require.NoError(t, err)
	assert.Len(t, ledger.calls, 0)
}

func TestHandle_RefundErrorSurfacedNotifyStillAttempted(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("durable store down")}
	notifier := &fakeNotifier{}
	s := New(ledger, notifier, newLogger(t))

	err := s.Handle(context.Background(), "job1", "tg1", "task-failed", 20, "external error")
	require.Error(t, err)
	assert.Equal(t, 1, notifier.failureCalls, "notify must still run even when the refund failed")
}

func TestHandle_NotifyErrorNeverPropagates(t *testing.T) {
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{notifyErr: errors.New("chat api down")}
	s := New(ledger, notifier, newLogger(t))

	err := s.Handle(context.Background(), "job1", "tg1", "task-failed", 20, "external error")
	require.NoError(t, err, "notify failures must never propagate per spec")
}
