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

// Package taskworker implements the Task Stage Worker: a
// concurrency-N pool pulling the taskQueue, dispatching each job to the
// external processor, and recording the outcome in the Job Log.
package taskworker

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"rag-platform/internal/iloveapi"
	"rag-platform/internal/joblog"
	"rag-platform/internal/notify"
	"rag-platform/internal/pipeline"
	"rag-platform/internal/queue"
	"rag-platform/internal/refund"
	"rag-platform/internal/tracing"
	"rag-platform/pkg/log"
)

// Config holds the task worker's tuning knobs.
type Config struct {
	Concurrency     int
	LockDuration    time.Duration
	LockRenewTime   time.Duration
	StalledInterval time.Duration
}

// DefaultConfig returns production defaults (concurrency=10). Callers
// running outside production should pass Concurrency: 2 explicitly.
func DefaultConfig() Config {
	return Config{
		Concurrency:   10,
		LockDuration:  40 * time.Second,
		LockRenewTime: 20 * time.Second,
	}
}

// Submitter is the subset of *iloveapi.Client the worker needs.
type Submitter interface {
	Submit(ctx context.Context, p iloveapi.SubmitParams) (*pipeline.TaskResult, error)
}

// Worker pulls and processes Task jobs.
type Worker struct {
	queue     queue.Queue
	submitter Submitter
	joblog    joblog.Store
	refund    *refund.Supervisor
	notifier  notify.Notifier
	logger    *log.Logger
	cfg       Config
	now       func() time.Time
}

func New(q queue.Queue, submitter Submitter, jobLog joblog.Store, refundSup *refund.Supervisor, notifier notify.Notifier, logger *log.Logger, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Worker{queue: q, submitter: submitter, joblog: jobLog, refund: refundSup, notifier: notifier, logger: logger, cfg: cfg, now: time.Now}
}

// Run blocks, polling the queue with Config.Concurrency workers until
// ctx is cancelled.
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
				w.logger.ErrorContext(ctx, "taskworker: claim failed", "error", err)
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
	var job pipeline.JobRecord
	if err := json.Unmarshal(claimed.Payload, &job); err != nil {
		w.logger.ErrorContext(ctx, "taskworker: malformed job payload", "job_id", claimed.JobID, "error", err)
		_ = w.queue.Fail(ctx, claimed.JobID)
		return
	}

	stop := w.startHeartbeat(ctx, workerID, claimed.JobID)
	defer stop()

	ctx, span := tracing.StartTaskSpan(ctx, claimed.JobID, string(job.Tool))
	defer span.End()

	stats := &pipeline.WorkerStats{
		CreatedAt:       claimed.EnqueuedAt,
		ProcessedAt:     w.now(),
		AttemptsStarted: claimed.Attempts,
		AttemptsMade:    claimed.Attempts,
		DelayMillis:     w.now().Sub(claimed.EnqueuedAt).Milliseconds(),
		Priority:        claimed.Priority,
	}

	result, submitErr := w.dispatch(ctx, job)
	stats.FinishedAt = w.now()

	if submitErr != nil {
		w.handleFailure(ctx, job, stats, submitErr)
		_ = w.queue.Fail(ctx, claimed.JobID)
		return
	}

	w.handleSuccess(ctx, job, stats, result)
	_ = w.queue.Complete(ctx, claimed.JobID)
}

func (w *Worker) dispatch(ctx context.Context, job pipeline.JobRecord) (*pipeline.TaskResult, error) {
	switch job.Tool {
	case pipeline.ToolUpscaleImage, pipeline.ToolRemoveBackgroundImage, pipeline.ToolImagePDF, pipeline.ToolMerge, pipeline.ToolCompress:
		return w.submitter.Submit(ctx, iloveapi.SubmitParams{
			Tool:         job.Tool,
			FileURLs:     job.FileLink.URLs,
			ToolOptions:  job.ToolOptions,
			CustomInt:    job.TgUserID,
			CustomString: job.JobID,
		})
	default:
		return nil, &pipeline.WorkerError{Message: "unknown tool", Code: "unknown_tool"}
	}
}

func (w *Worker) handleSuccess(ctx context.Context, job pipeline.JobRecord, stats *pipeline.WorkerStats, result *pipeline.TaskResult) {
	_, err := w.joblog.AddJobLog(ctx, joblog.AddParams{
		Event: "task.completed", JobID: job.JobID, UserID: job.UserID, TgUserID: job.TgUserID,
		Tool: job.Tool, ToolPrice: job.ToolPrice, ToolOptions: job.ToolOptions,
		PaymentMethod: job.PaymentMethod, Files: job.FileLink.URLs,
		WorkerResult: result, WorkerStats: stats,
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "taskworker: job log append failed", "job_id", job.JobID, "error", err)
		if job.TgUserID != "" {
			if notifyErr := w.notifier.NotifyTrackingFailure(ctx, job.TgUserID, job.JobID); notifyErr != nil {
				w.logger.WarnContext(ctx, "taskworker: tracking-failure notice failed", "job_id", job.JobID, "error", notifyErr)
			}
		}
	}
}

func (w *Worker) handleFailure(ctx context.Context, job pipeline.JobRecord, stats *pipeline.WorkerStats, taskErr error) {
	workerErr, ok := taskErr.(*pipeline.WorkerError)
	if !ok {
		workerErr = &pipeline.WorkerError{Message: taskErr.Error()}
	}

	_, logErr := w.joblog.AddJobLog(ctx, joblog.AddParams{
		Event: "task.failed", JobID: job.JobID, UserID: job.UserID, TgUserID: job.TgUserID,
		Tool: job.Tool, ToolPrice: job.ToolPrice, ToolOptions: job.ToolOptions,
		PaymentMethod: job.PaymentMethod, Files: job.FileLink.URLs,
		WorkerError: workerErr, WorkerStats: stats, Immutable: true,
	})
	if logErr != nil {
		w.logger.ErrorContext(ctx, "taskworker: job log append failed on failure path", "job_id", job.JobID, "error", logErr)
	}

	// No retries at this layer — the queue job is already
	// terminal; refund and notify are the only remaining actions.
	if job.PaymentMethod == pipeline.PaymentMethodSharedCredit {
		if err := w.refund.Handle(ctx, job.JobID, job.TgUserID, "task-failed", job.ToolPrice, workerErr.Message); err != nil {
			w.logger.ErrorContext(ctx, "taskworker: refund failed", "job_id", job.JobID, "error", err)
		}
	}
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
					w.logger.WarnContext(hbCtx, "taskworker: heartbeat failed", "job_id", jobID, "error", err)
					return
				}
			}
		}
	}()
	return cancel
}
