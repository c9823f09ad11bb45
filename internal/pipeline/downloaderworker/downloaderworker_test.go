// Copyright 2026 fanjia1024

package downloaderworker

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

type fakeDownloader struct {
	data []byte
	err  error
}

func (f *fakeDownloader) Download(ctx context.Context, p iloveapi.DownloadParams) ([]byte, error) {
	return f.data, f.err
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

func enqueueWebhookJob(t *testing.T, q *queue.MemQueue, p WebhookPayload) {
	t.Helper()
	payload, err := json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), p.JobID, payload, 0))
}

func seedJobLogRow(t *testing.T, js *joblog.MemStore, jobID, tgUserID string, tool pipeline.Tool, price int) {
	t.Helper()
	_, err := js.AddJobLog(context.Background(), joblog.AddParams{
		Event: "task.completed", JobID: jobID, TgUserID: tgUserID, Tool: tool, ToolPrice: price,
		PaymentMethod: pipeline.PaymentMethodSharedCredit,
	})
	require.NoError(t, err)
}

func TestWorker_DeliversAndPatchesJobLog(t *testing.T) {
	q := queue.NewMemQueue()
	js := joblog.NewMemStore()
	seedJobLogRow(t, js, "job1", "185150", pipeline.ToolUpscaleImage, 20)

	downloader := &fakeDownloader{data: []byte("bytes")}
	ledger := &fakeLedger{}
	notifier := notify.NewLogNotifier(newLogger(t))
	sup := refund.New(ledger, notifier, newLogger(t))

	enqueueWebhookJob(t, q, WebhookPayload{
		Event: "task.completed", JobID: "job1", TgUserID: "185150",
		Tool: pipeline.ToolUpscaleImage, ToolPrice: 20, PaymentMethod: pipeline.PaymentMethodSharedCredit,
		Server: "api8g.example.com", TaskID: "t1",
	})

	w := New(q, downloader, js, sup, notifier, newLogger(t), Config{Concurrency: 1, LockDuration: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	w.Run(ctx, "test")

	rows := js.FindByJobID("job1")
	require.Len(t, rows, 1)
	assert.Equal(t, "completed", rows[0].DownloaderWorkerState)
	assert.True(t, rows[0].Immutable)
	assert.Empty(t, ledger.refunded)
}

func TestWorker_DownloadFailureRefundsAndPatches(t *testing.T) {
	q := queue.NewMemQueue()
	js := joblog.NewMemStore()
	seedJobLogRow(t, js, "job2", "185150", pipeline.ToolCompress, 5)

	downloader := &fakeDownloader{err: assertError{"download failed"}}
	ledger := &fakeLedger{}
	notifier := notify.NewLogNotifier(newLogger(t))
	sup := refund.New(ledger, notifier, newLogger(t))

	enqueueWebhookJob(t, q, WebhookPayload{
		Event: "task.completed", JobID: "job2", TgUserID: "185150",
		Tool: pipeline.ToolCompress, ToolPrice: 5, PaymentMethod: pipeline.PaymentMethodSharedCredit,
		Server: "api8g.example.com", TaskID: "t2",
	})

	w := New(q, downloader, js, sup, notifier, newLogger(t), Config{Concurrency: 1, LockDuration: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	w.Run(ctx, "test")

	rows := js.FindByJobID("job2")
	require.Len(t, rows, 1)
	assert.Equal(t, "failed", rows[0].DownloaderWorkerState)
	require.Len(t, ledger.refunded, 1)
	assert.Equal(t, 5, ledger.refunded[0])
}

func TestWorker_TaskFailedEventSkipsDownloadGoesStraightToFailure(t *testing.T) {
	q := queue.NewMemQueue()
	js := joblog.NewMemStore()
	seedJobLogRow(t, js, "job3", "185150", pipeline.ToolMerge, 10)

	downloader := &fakeDownloader{}
	ledger := &fakeLedger{}
	notifier := notify.NewLogNotifier(newLogger(t))
	sup := refund.New(ledger, notifier, newLogger(t))

	enqueueWebhookJob(t, q, WebhookPayload{
		Event: "task.failed", JobID: "job3", TgUserID: "185150",
		Tool: pipeline.ToolMerge, ToolPrice: 10, PaymentMethod: pipeline.PaymentMethodSharedCredit,
		StatusMessage: "external processor rejected job",
	})

	w := New(q, downloader, js, sup, notifier, newLogger(t), Config{Concurrency: 1, LockDuration: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	w.Run(ctx, "test")

	rows := js.FindByJobID("job3")
	require.Len(t, rows, 1)
	assert.Equal(t, "failed", rows[0].DownloaderWorkerState)
	require.Len(t, ledger.refunded, 1)
}

func TestStripServerEscapes(t *testing.T) {
	assert.Equal(t, "api8g.example.com", stripServerEscapes(`api8g.example.com`))
	assert.Equal(t, "api8g.example.com", stripServerEscapes(`api8g.example.com\`))
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
