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

// Package httpapi is the HTTP transport surface: the
// /iloveapi webhook route the external processor posts to, plus
// read-only health/status/metrics routes, built on
// github.com/cloudwego/hertz.
package httpapi

import (
	"bytes"
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"rag-platform/internal/ledger"
	"rag-platform/internal/queue"
	"rag-platform/internal/webhook"
	"rag-platform/pkg/metrics"
)

// Handler holds the dependencies the routes dispatch into.
type Handler struct {
	webhook        *webhook.Intake
	ledger         *ledger.Ledger
	taskQueue      queue.Queue
	downloadQueue  queue.Queue
}

// NewHandler wires a Handler. ledger/taskQueue/downloadQueue are used
// read-only by SystemStatus; pass nil to omit a field from the report.
func NewHandler(intake *webhook.Intake, l *ledger.Ledger, taskQueue, downloadQueue queue.Queue) *Handler {
	return &Handler{webhook: intake, ledger: l, taskQueue: taskQueue, downloadQueue: downloadQueue}
}

// HealthCheck is a liveness probe.
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	writeOK(c, consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "filebuds-pipeline",
	})
}

// Webhook handles POST /iloveapi — the external processor's callback.
func (h *Handler) Webhook(ctx context.Context, c *app.RequestContext) {
	meta := webhook.RequestMeta{
		APIKeyHeader: string(c.GetHeader("apikey")),
		APIKeyQuery:  c.Query("apikey"),
		Origin:       string(c.GetHeader("Origin")),
		Referer:      string(c.GetHeader("Referer")),
	}
	resp, err := h.webhook.Handle(ctx, c.Request.Body(), meta)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeOK(c, consts.StatusOK, resp)
}

// SystemStatus reports queue backlog and today's credits-left,
// read-only.
func (h *Handler) SystemStatus(ctx context.Context, c *app.RequestContext) {
	status := map[string]interface{}{
		"service":   "filebuds-pipeline",
		"timestamp": time.Now(),
	}
	if h.ledger != nil {
		if left, found, err := h.ledger.GetCreditsLeft(ctx, false); err == nil {
			status["credits_left"] = left
			status["credits_left_known"] = found
		}
	}
	if h.taskQueue != nil {
		if n, err := h.taskQueue.Backlog(ctx); err == nil {
			status["task_queue_backlog"] = n
		}
	}
	if h.downloadQueue != nil {
		if n, err := h.downloadQueue.Backlog(ctx); err == nil {
			status["downloader_queue_backlog"] = n
		}
	}
	writeOK(c, consts.StatusOK, status)
}

// SystemMetrics serves the Prometheus text-exposition format.
func (h *Handler) SystemMetrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		hlog.CtxErrorf(ctx, "WritePrometheus: %v", err)
		c.AbortWithStatus(consts.StatusInternalServerError)
		return
	}
	c.Header("Content-Type", "text/plain; version=0.0.4")
	c.Write(buf.Bytes())
}
