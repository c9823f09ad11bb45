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

// Package notify is the chat-bot delivery boundary. The chat-bot front
// end itself is out of scope; this package is
// the black-box interface the pipeline calls into, plus a logging
// implementation used where no chat transport is configured.
package notify

import (
	"context"

	"rag-platform/internal/pipeline"
	"rag-platform/pkg/log"
)

// FollowupAction is one inline keyboard entry offered alongside a
// delivered artifact.
type FollowupAction struct {
	Tool  pipeline.Tool
	Label string
}

// Notifier is the black-box chat delivery surface. Implementations must
// not block the caller for long; failures are always best-effort from
// the caller's perspective.
type Notifier interface {
	// NotifyProcessing tells the user their submission was accepted and
	// is being worked on.
	NotifyProcessing(ctx context.Context, tgUserID, jobID string, tool pipeline.Tool) error
	// NotifyTrackingFailure is the courtesy message sent when a Job Log
	// append fails after a successful Task stage.
	NotifyTrackingFailure(ctx context.Context, tgUserID, jobID string) error
	// DeliverArtifact sends the finished file(s) with a caption carrying
	// the fingerprint and a follow-up keyboard.
	DeliverArtifact(ctx context.Context, tgUserID, jobID string, fileKind pipeline.FileType, urls []string, downloadFilename string, followups []FollowupAction) error
	// NotifyFailure is the refund-and-apologize message sent on a
	// terminal failure.
	NotifyFailure(ctx context.Context, tgUserID, jobID string, reason string) error
}

// LogNotifier logs every notification instead of delivering it. It is
// the default wired when no chat transport is configured, and is
// sufficient to exercise the refund/notify call sites end to end.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyProcessing(ctx context.Context, tgUserID, jobID string, tool pipeline.Tool) error {
	n.logger.InfoContext(ctx, "notify: processing", "tg_user_id", tgUserID, "job_id", jobID, "tool", string(tool))
	return nil
}

func (n *LogNotifier) NotifyTrackingFailure(ctx context.Context, tgUserID, jobID string) error {
	n.logger.WarnContext(ctx, "notify: tracking slip could not be updated", "tg_user_id", tgUserID, "job_id", jobID)
	return nil
}

func (n *LogNotifier) DeliverArtifact(ctx context.Context, tgUserID, jobID string, fileKind pipeline.FileType, urls []string, downloadFilename string, followups []FollowupAction) error {
	n.logger.InfoContext(ctx, "notify: deliver artifact",
		"tg_user_id", tgUserID, "job_id", jobID, "file_type", string(fileKind),
		"urls", urls, "download_filename", downloadFilename, "followup_count", len(followups))
	return nil
}

func (n *LogNotifier) NotifyFailure(ctx context.Context, tgUserID, jobID string, reason string) error {
	n.logger.WarnContext(ctx, "notify: failure", "tg_user_id", tgUserID, "job_id", jobID, "reason", reason)
	return nil
}
