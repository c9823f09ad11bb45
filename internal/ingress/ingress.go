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

// Package ingress implements Job Identity & Ingress: it
// fingerprints a submission, consults the rate limiter and the credit
// ledger in order, and enqueues a Task job on admission.
package ingress

import (
	"context"
	"encoding/json"
	"time"

	"rag-platform/internal/pipeline"
	"rag-platform/internal/pipeline/tool"
	"rag-platform/internal/tracing"
	pkgerrors "rag-platform/pkg/errors"
)

// RateLimiter is the subset of *ratelimit.Limiter the ingress needs.
type RateLimiter interface {
	Attempt(key, refID string) bool
}

// CreditConsumer is the subset of *ledger.Ledger the ingress needs.
type CreditConsumer interface {
	ConsumeCredits(ctx context.Context, amount int, reason, refID, details string) (bool, error)
}

// TaskEnqueuer is the subset of queue.Queue the ingress needs (always the
// taskQueue instance).
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, jobID string, payload []byte, priority int) error
}

// Request is an admitted user submission, already normalized by the
// HTTP/chat-bot layer (file upload resolution, tool_options parsing are
// out of scope here).
type Request struct {
	UserID        string
	TgUserID      string
	Tool          pipeline.Tool
	ToolOptions   map[string]any
	FileType      pipeline.FileType
	FileLink      pipeline.FileLink
	PaymentMethod pipeline.PaymentMethod
	Priority      int
	SubmittedAt   time.Time
}

// Ingress wires the rate limiter, credit ledger, and task queue behind
// the admission sequence: rate-limit check, credit consumption, then
// enqueue.
type Ingress struct {
	rateLimiter RateLimiter
	credits     CreditConsumer
	taskQueue   TaskEnqueuer
	now         func() time.Time
}

func New(rateLimiter RateLimiter, credits CreditConsumer, taskQueue TaskEnqueuer) *Ingress {
	return &Ingress{rateLimiter: rateLimiter, credits: credits, taskQueue: taskQueue, now: time.Now}
}

// identity returns whichever of UserID/TgUserID is set, preferring
// UserID — this is also the rate-limiter key.
func (r Request) identity() string {
	if r.UserID != "" {
		return r.UserID
	}
	return r.TgUserID
}

// Admit runs the three-step admission sequence and, on success, enqueues
// the Task job with jobId = fingerprint. It returns the fingerprint job
// id on admission.
func (ig *Ingress) Admit(ctx context.Context, req Request) (jobID string, err error) {
	identity := req.identity()
	if identity == "" {
		return "", pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "ingress: neither user_id nor tg_user_id set")
	}
	if req.UserID != "" && req.TgUserID != "" {
		return "", pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "ingress: both user_id and tg_user_id set")
	}
	if !tool.Known(req.Tool) {
		return "", pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "ingress: unknown tool %q", req.Tool)
	}

	submittedAt := req.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = ig.now()
	}
	fingerprint := pipeline.Fingerprint(identity, req.Tool, submittedAt)

	ctx, span := tracing.StartIngressSpan(ctx, fingerprint, string(req.Tool))
	defer span.End()

	// Step 2: rate limiter. Reject without side effects.
	if !ig.rateLimiter.Attempt(identity, fingerprint) {
		return "", pkgerrors.ErrRateLimited
	}

	// Step 3: shared credits. A false return means out of quota; no
	// refund is needed since nothing was consumed.
	price := tool.Price(req.Tool)
	ok, err := ig.credits.ConsumeCredits(ctx, price, "consume", fingerprint, string(req.Tool))
	if err != nil && !ok {
		return "", pkgerrors.Wrap(err, "ingress: consume credits")
	}
	if !ok {
		return "", pkgerrors.ErrOutOfQuota
	}

	// Step 4: enqueue the Task job. removeOnComplete/removeOnFail is the
	// queue's default behavior (Complete/Fail both delete the row —
	// auditing lives in the Job Log, not the queue).
	record := pipeline.JobRecord{
		JobID:         fingerprint,
		UserID:        req.UserID,
		TgUserID:      req.TgUserID,
		Tool:          req.Tool,
		ToolOptions:   req.ToolOptions,
		FileType:      req.FileType,
		FileLink:      req.FileLink,
		ToolPrice:     price,
		PaymentMethod: req.PaymentMethod,
		SubmittedAt:   submittedAt,
		Priority:      req.Priority,
		CustomInt:     req.TgUserID,
		CustomString:  fingerprint,
	}
	payload, marshalErr := json.Marshal(record)
	if marshalErr != nil {
		return "", pkgerrors.Wrap(marshalErr, "ingress: marshal job record")
	}
	if err := ig.taskQueue.Enqueue(ctx, fingerprint, payload, req.Priority); err != nil {
		return "", pkgerrors.Wrap(err, "ingress: enqueue task job")
	}

	return fingerprint, nil
}
