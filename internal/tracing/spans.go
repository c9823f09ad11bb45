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

// Package tracing wraps pkg/tracing's OTel tracer with span helpers
// scoped to the pipeline's four stages, keyed throughout by the job
// fingerprint. internal/webhook's Intake.Handle, internal/ingress,
// internal/pipeline/taskworker, and internal/pipeline/downloaderworker
// each open one span per job they touch.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "filebuds-pipeline"

// StartIngressSpan opens the admission span (C3).
func StartIngressSpan(ctx context.Context, fingerprint string, tool string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "ingress.admit", trace.WithAttributes(
		attribute.String("job.fingerprint", fingerprint),
		attribute.String("job.tool", tool),
	))
}

// StartTaskSpan opens the task-stage processing span (C4).
func StartTaskSpan(ctx context.Context, jobID string, tool string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "taskworker.process", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("job.tool", tool),
	))
}

// StartWebhookSpan opens the webhook intake span (C5).
func StartWebhookSpan(ctx context.Context, fingerprint string, event string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "webhook.intake", trace.WithAttributes(
		attribute.String("job.fingerprint", fingerprint),
		attribute.String("webhook.event", event),
	))
}

// StartDownloaderSpan opens the downloader-stage processing span (C6).
func StartDownloaderSpan(ctx context.Context, jobID string, tool string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "downloaderworker.process", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("job.tool", tool),
	))
}
