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

// Package downloaderworker implements the Downloader Stage Worker:
// same concurrency/lease shape as the Task Stage Worker, downloading
// the finished artifact, delivering it to the chat user, and patching
// the Job Log. Shares its queue-consumer shape with
// internal/pipeline/taskworker.
package downloaderworker

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"rag-platform/internal/iloveapi"
	"rag-platform/internal/joblog"
	"rag-platform/internal/notify"
	"rag-platform/internal/pipeline"
	"rag-platform/internal/pipeline/tool"
	"rag-platform/internal/queue"
	"rag-platform/internal/refund"
	"rag-platform/internal/tracing"
	"rag-platform/pkg/log"
)

// Config mirrors taskworker.Config — the downloader stage reuses the
// same concurrency/lease envelope as the task stage.
type Config struct {
	Concurrency     int
	LockDuration    time.Duration
	LockRenewTime   time.Duration
	StalledInterval time.Duration
}

func DefaultConfig() Config {
	return Config{Concurrency: 10, LockDuration: 40 * time.Second, LockRenewTime: 20 * time.Second}
}

// Downloader is the subset of *iloveapi.Client the worker needs.
type Downloader interface {
	Download(ctx context.Context, p iloveapi.DownloadParams) ([]byte, error)
}

// WebhookPayload is the job payload enqueued by the webhook,
// carrying either a completed task ready to download or a failed task
// that needs compensating refund/notify only.
type WebhookPayload struct {
	Event         string            `json:"event"`
	JobID         string            `json:"job_id"`
	UserID        string            `json:"user_id,omitempty"`
	TgUserID      string            `json:"tg_user_id,omitempty"`
	Tool          pipeline.Tool     `json:"tool"`
	ToolPrice     int               `json:"tool_price"`
	PaymentMethod pipeline.PaymentMethod `json:"payment_method"`
	Server        string            `json:"server"`
	TaskID        string            `json:"task_id"`
	DownloadName  string            `json:"download_filename,omitempty"`
	StatusMessage string            `json:"status_message,omitempty"`
}

// Worker pulls and processes Downloader jobs.
type Worker struct {
	queue      queue.Queue
	downloader Downloader
	joblog     joblog.Store
	refund     *refund.Supervisor
	notifier   notify.Notifier
	logger     *log.Logger
	cfg        Config
	now        func() time.Time
}

func New(q queue.Queue, downloader Downloader, jobLog joblog.Store, refundSup *refund.Supervisor, notifier notify.Notifier, logger *log.Logger, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Worker{queue: q, downloader: downloader, joblog: jobLog, refund: refundSup, notifier: notifier, logger: logger, cfg: cfg, now: time.Now}
}

func (w *Worker) Run(ctx context.Context, workerIDPrefix string) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		workerID := workerIDPrefix + "-" + strconv.Itoa(i)
		go func() {
			defer wg.Done()
			w.loop(ctx, workerID)
		}()
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, workerID string) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			claimed, ok, err := w.queue.Claim(ctx, workerID, w.cfg.LockDuration)
			if err != nil {
				w.logger.ErrorContext(ctx, "downloaderworker: claim failed", "error", err)
				continue
			}
			if !ok {
				continue
			}
			w.process(ctx, workerID, claimed)
		}
	}
}

func (w *Worker) process(ctx context.Context, workerID string, claimed *queue.ClaimedJob) {
	var payload WebhookPayload
	if err := json.Unmarshal(claimed.Payload, &payload); err != nil {
		w.logger.ErrorContext(ctx, "downloaderworker: malformed job payload", "job_id", claimed.JobID, "error", err)
		_ = w.queue.Fail(ctx, claimed.JobID)
		return
	}

	stop := w.startHeartbeat(ctx, workerID, claimed.JobID)
	defer stop()

	ctx, span := tracing.StartDownloaderSpan(ctx, claimed.JobID, string(payload.Tool))
	defer span.End()

	stats := &pipeline.WorkerStats{
		CreatedAt:       claimed.EnqueuedAt,
		ProcessedAt:     w.now(),
		AttemptsStarted: claimed.Attempts,
		AttemptsMade:    claimed.Attempts,
		DelayMillis:     w.now().Sub(claimed.EnqueuedAt).Milliseconds(),
		Priority:        claimed.Priority,
	}

	if payload.Event == "task.failed" {
		w.handleFailure(ctx, payload, stats, payload.StatusMessage)
		_ = w.queue.Fail(ctx, claimed.JobID)
		return
	}

	urls, err := w.deliver(ctx, payload)
	stats.FinishedAt = w.now()
	if err != nil {
		w.handleFailure(ctx, payload, stats, err.Error())
		_ = w.queue.Fail(ctx, claimed.JobID)
		return
	}

	w.handleSuccess(ctx, payload, stats, urls)
	_ = w.queue.Complete(ctx, claimed.JobID)
}

// deliver downloads the artifact, classifies it, and sends it to chat
// with a follow-up keyboard.
func (w *Worker) deliver(ctx context.Context, payload WebhookPayload) ([]string, error) {
	server := stripServerEscapes(payload.Server)
	if _, err := w.downloader.Download(ctx, iloveapi.DownloadParams{TaskID: payload.TaskID, Server: server}); err != nil {
		return nil, err
	}

	fileKind := tool.OutputFileKind(payload.Tool)
	followups := buildFollowups(payload.Tool)

	// The chat transport itself is a black box (internal/notify); this
	// worker's job is done once the bytes are confirmed downloadable
	// and handed across that boundary by reference.
	url := "data:" + string(fileKind) + ";task=" + payload.TaskID
	if err := w.notifier.DeliverArtifact(ctx, payload.TgUserID, payload.JobID, fileKind, []string{url}, payload.DownloadName, followups); err != nil {
		return nil, err
	}
	return []string{url}, nil
}

func buildFollowups(t pipeline.Tool) []notify.FollowupAction {
	candidates := tool.ChainableFollowups(t)
	out := make([]notify.FollowupAction, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, notify.FollowupAction{Tool: c, Label: string(c)})
	}
	return out
}

func stripServerEscapes(server string) string {
	return strings.NewReplacer("\\", "", "%5C", "").Replace(server)
}

func (w *Worker) handleSuccess(ctx context.Context, payload WebhookPayload, stats *pipeline.WorkerStats, urls []string) {
	err := w.joblog.UpdateWorkerJobLog(ctx, joblog.UpdateParams{
		Event:     "downloader.completed",
		Filter:    jobFilter(payload),
		Immutable: true,
		WorkerStats: stats,
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "downloaderworker: job log patch failed", "job_id", payload.JobID, "error", err)
	}
}

func (w *Worker) handleFailure(ctx context.Context, payload WebhookPayload, stats *pipeline.WorkerStats, reason string) {
	err := w.joblog.UpdateWorkerJobLog(ctx, joblog.UpdateParams{
		Event:       "downloader.failed",
		Filter:      jobFilter(payload),
		Immutable:   true,
		WorkerError: &pipeline.WorkerError{Message: reason},
		WorkerStats: stats,
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "downloaderworker: job log patch failed on failure path", "job_id", payload.JobID, "error", err)
	}

	if payload.PaymentMethod == pipeline.PaymentMethodSharedCredit {
		if err := w.refund.Handle(ctx, payload.JobID, payload.TgUserID, "downloader-failed", payload.ToolPrice, reason); err != nil {
			w.logger.ErrorContext(ctx, "downloaderworker: refund failed", "job_id", payload.JobID, "error", err)
		}
	}
}

// jobFilter identifies the job-log row by (job_id, tg_user_id),
// falling back to (job_id, user_id) for non-chat submissions.
func jobFilter(payload WebhookPayload) map[string]any {
	if payload.TgUserID != "" {
		return map[string]any{"job_id": payload.JobID, "tg_user_id": payload.TgUserID}
	}
	return map[string]any{"job_id": payload.JobID, "user_id": payload.UserID}
}

func (w *Worker) startHeartbeat(ctx context.Context, workerID, jobID string) func() {
	if w.cfg.LockRenewTime <= 0 {
		return func() {}
	}
	hbCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(w.cfg.LockRenewTime)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := w.queue.Heartbeat(hbCtx, workerID, jobID, w.cfg.LockDuration); err != nil {
					w.logger.WarnContext(hbCtx, "downloaderworker: heartbeat failed", "job_id", jobID, "error", err)
					return
				}
			}
		}
	}()
	return cancel
}
