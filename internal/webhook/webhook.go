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

// Package webhook implements Webhook Intake: schema
// validation, shared-secret/origin-allowlist authentication, and
// enqueueing the Downloader job. Kept transport-agnostic — the HTTP
// wiring (internal/httpapi) calls Intake.Handle with the raw body and
// request metadata.
package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"rag-platform/internal/pipeline"
	"rag-platform/internal/pipeline/tool"
	"rag-platform/internal/tracing"
	pkgerrors "rag-platform/pkg/errors"
)

// TaskPayload is data.task from the external processor's webhook body.
type TaskPayload struct {
	Tool          pipeline.Tool `json:"tool"`
	Server        string        `json:"server"`
	TaskID        string        `json:"task"`
	CustomInt     string        `json:"custom_int"`
	CustomString  string        `json:"custom_string"`
	Status        string        `json:"status"`
	StatusMessage string        `json:"status_message"`
	OutputFiles   []string      `json:"output_files,omitempty"`
}

// Body is the full webhook request body.
type Body struct {
	Event string      `json:"event"`
	Data  struct {
		Task TaskPayload `json:"task"`
	} `json:"data"`
}

func (b Body) validate() error {
	switch b.Event {
	case "task.completed", "task.failed":
	default:
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidWebhook, "webhook: unknown event %q", b.Event)
	}
	if b.Data.Task.CustomString == "" {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidWebhook, "webhook: data.task.custom_string (fingerprint) required")
	}
	return nil
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	SharedSecret string
	// AllowedOrigins lists exact hosts or, with a leading dot, suffix
	// matches (".example.com" matches "api.example.com").
	AllowedOrigins []string
}

func (c AuthConfig) authenticate(apiKeyHeader, apiKeyQuery, origin, referer string) bool {
	if c.SharedSecret != "" {
		if apiKeyHeader == c.SharedSecret || apiKeyQuery == c.SharedSecret {
			return true
		}
	}
	host := hostOf(origin)
	if host == "" {
		host = hostOf(referer)
	}
	if host == "" {
		return false
	}
	for _, allowed := range c.AllowedOrigins {
		if strings.HasPrefix(allowed, ".") {
			if strings.HasSuffix(host, allowed) || host == strings.TrimPrefix(allowed, ".") {
				return true
			}
			continue
		}
		if host == allowed {
			return true
		}
	}
	return false
}

func hostOf(originOrReferer string) string {
	s := strings.TrimPrefix(originOrReferer, "https://")
	s = strings.TrimPrefix(s, "http://")
	if idx := strings.IndexAny(s, "/:"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// DownloaderEnqueuer is the subset of queue.Queue the intake needs.
type DownloaderEnqueuer interface {
	Enqueue(ctx context.Context, jobID string, payload []byte, priority int) error
}

// Intake validates and admits webhook requests.
type Intake struct {
	auth      AuthConfig
	downloader DownloaderEnqueuer
	now       func() time.Time
}

func New(auth AuthConfig, downloaderQueue DownloaderEnqueuer) *Intake {
	return &Intake{auth: auth, downloader: downloaderQueue, now: time.Now}
}

// RequestMeta carries the authentication-relevant parts of the inbound
// HTTP request, decoupled from any specific HTTP framework.
type RequestMeta struct {
	APIKeyHeader string
	APIKeyQuery  string
	Origin       string
	Referer      string
}

// Response is the acknowledgement body returned on task.completed.
type Response struct {
	OK        bool   `json:"ok"`
	IsWaiting bool   `json:"isWaiting"`
	JID       string `json:"jid"`
}

// downloaderPayload is what gets enqueued for the downloader worker —
// the correlation tokens plus enough task metadata to drive delivery
// and the compensating refund on failure.
type downloaderPayload struct {
	Event         string                     `json:"event"`
	JobID         string                     `json:"job_id"`
	TgUserID      string                     `json:"tg_user_id,omitempty"`
	Tool          pipeline.Tool              `json:"tool"`
	ToolPrice     int                        `json:"tool_price"`
	PaymentMethod pipeline.PaymentMethod     `json:"payment_method"`
	Server        string                     `json:"server"`
	TaskID        string                     `json:"task_id"`
	StatusMessage string                     `json:"status_message,omitempty"`
}

// Handle authenticates, validates, and dispatches one webhook request.
func (in *Intake) Handle(ctx context.Context, rawBody []byte, meta RequestMeta) (Response, error) {
	if !in.auth.authenticate(meta.APIKeyHeader, meta.APIKeyQuery, meta.Origin, meta.Referer) {
		return Response{}, pkgerrors.ErrUnauthorized
	}

	var body Body
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.ErrInvalidWebhook, "webhook: malformed JSON body")
	}
	if err := body.validate(); err != nil {
		return Response{}, err
	}

	task := body.Data.Task
	ctx, span := tracing.StartWebhookSpan(ctx, task.CustomString, body.Event)
	defer span.End()

	payload := downloaderPayload{
		Event:         body.Event,
		JobID:         task.CustomString,
		TgUserID:      task.CustomInt,
		Tool:          task.Tool,
		PaymentMethod: pipeline.PaymentMethodSharedCredit,
		Server:        task.Server,
		TaskID:        task.TaskID,
		StatusMessage: task.StatusMessage,
	}
	if spec, ok := tool.Lookup(task.Tool); ok {
		payload.ToolPrice = spec.DefaultPrice
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return Response{}, pkgerrors.Wrap(err, "webhook: marshal downloader payload")
	}

	// Idempotent: the queue treats jobId as a unique key, so a
	// duplicate webhook for the same fingerprint is silently ignored.
	if err := in.downloader.Enqueue(ctx, task.CustomString, encoded, 0); err != nil {
		return Response{}, pkgerrors.Wrap(err, "webhook: enqueue downloader job")
	}

	return Response{OK: true, IsWaiting: body.Event == "task.completed", JID: task.CustomString}, nil
}
