// Copyright 2026 fanjia1024

package taskworker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-platform/internal/iloveapi"
	"rag-platform/internal/joblog"
	"rag-platform/internal/notify"
	"rag-platform/internal/pipeline"
	"rag-platform/internal/queue"
	"rag-platform/internal/refund"
	"rag-platform/pkg/log"
)

type fakeSubmitter struct {
	result *pipeline.TaskResult
	err    error
}

func (f *fakeSubmitter) Submit(ctx context.Context, p iloveapi.SubmitParams) (*pipeline.TaskResult, error) {
	return f.result, f.err
}

type fakeLedger struct{ refunded []int }

func (f *fakeLedger) RefundCredits(ctx context.Context, amount int, reason string) error {
	f.refunded = append(f.refunded, amount)
	return nil
}

func newLogger(t *testing.T) *log.Logger {
	t.Helper()
	l, err := log.NewLogger(nil)
	require.NoError(t, err)
	return l
}

func enqueueJob(t *testing.T, q *queue.MemQueue, job pipeline.JobRecord) {
	t.Helper()
	payload, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), job.JobID, payload, job.Priority))
}

func TestWorker_ProcessesJobSuccessfully(t *testing.T) {
	q := queue.NewMemQueue()
	js := joblog.NewMemStore()
	submitter := &fakeSubmitter{result: &pipeline.TaskResult{Server: "s1", TaskID: "t1"}}
	ledger := &fakeLedger{}
	notifier := notify.NewLogNotifier(newLogger(t))
	sup := refund.New(ledger, notifier, newLogger(t))

	job := pipeline.JobRecord{JobID: "job1", TgUserID: "185150", Tool: pipeline.ToolUpscaleImage, ToolPrice: 20, PaymentMethod: pipeline.PaymentMethodSharedCredit}
	enqueueJob(t, q, job)

	w := New(q, submitter, js, sup, notifier, newLogger(t), Config{Concurrency: 1, LockDuration: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	w.Run(ctx, "test")

	rows := js.FindByJobID("job1")
	require.Len(t, rows, 1)
	assert.Equal(t, "completed", rows[0].TaskWorkerState)
	assert.False(t, rows[0].Immutable)
	assert.Equal(t, "t1", rows[0].TaskWorkerResult.TaskID)
	assert.Empty(t, ledger.refunded, "success path must not refund")
}

func TestWorker_FailureTriggersRefund(t *testing.T) {
	q := queue.NewMemQueue()
	js := joblog.NewMemStore()
	submitter := &fakeSubmitter{err: &pipeline.WorkerError{Message: "external service down"}}
	ledger := &fakeLedger{}
	notifier := notify.NewLogNotifier(newLogger(t))
	sup := refund.New(ledger, notifier, newLogger(t))

	job := pipeline.JobRecord{JobID: "job2", TgUserID: "185150", Tool: pipeline.ToolCompress, ToolPrice: 5, PaymentMethod: pipeline.PaymentMethodSharedCredit}
	enqueueJob(t, q, job)

	w := New(q, submitter, js, sup, notifier, newLogger(t), Config{Concurrency: 1, LockDuration: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	w.Run(ctx, "test")

	rows := js.FindByJobID("job2")
	require.Len(t, rows, 1)
	assert.Equal(t, "failed", rows[0].TaskWorkerState)
	assert.True(t, rows[0].Immutable)
	require.Len(t, ledger.refunded, 1)
	assert.Equal(t, 5, ledger.refunded[0])
}

func TestWorker_UnknownToolHardFails(t *testing.T) {
	q := queue.NewMemQueue()
	js := joblog.NewMemStore()
	submitter := &fakeSubmitter{result: &pipeline.TaskResult{}}
	ledger := &fakeLedger{}
	notifier := notify.NewLogNotifier(newLogger(t))
	sup := refund.New(ledger, notifier, newLogger(t))

	job := pipeline.JobRecord{JobID: "job3", TgUserID: "1", Tool: "bogus-tool", ToolPrice: 5, PaymentMethod: pipeline.PaymentMethodSharedCredit}
	enqueueJob(t, q, job)

	w := New(q, submitter, js, sup, notifier, newLogger(t), Config{Concurrency: 1, LockDuration: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	w.Run(ctx, "test")

	rows := js.FindByJobID("job3")
	require.Len(t, rows, 1)
	assert.Equal(t, "failed", rows[0].TaskWorkerState)
}
