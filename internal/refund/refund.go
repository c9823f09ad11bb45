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

// Package refund implements the Refund & Notify Supervisor,
// triggered from both the Task Stage Worker and the Downloader Stage
// Worker on a terminal failure of a job paid from shared credits.
package refund

import (
	"context"

	"rag-platform/internal/notify"
	"rag-platform/pkg/log"
)

// CreditRefunder is the subset of *ledger.Ledger the supervisor needs.
type CreditRefunder interface {
	RefundCredits(ctx context.Context, amount int, reason string) error
}

// Supervisor performs the refund-then-notify sequence on a terminal
// failure. Notification is always best-effort: its failure is logged,
// never propagated.
type Supervisor struct {
	ledger   CreditRefunder
	notifier notify.Notifier
	logger   *log.Logger
}

func New(ledger CreditRefunder, notifier notify.Notifier, logger *log.Logger) *Supervisor {
	return &Supervisor{ledger: ledger, notifier: notifier, logger: logger}
}

// Handle refunds toolPrice credits tagged with stageLabel as the reason,
// then — only if tgUserID is non-empty — best-effort notifies the user
// of the failure. It returns the refund error, if any; a notify failure
// never surfaces here.
func (s *Supervisor) Handle(ctx context.Context, jobID, tgUserID, stageLabel string, toolPrice int, failureReason string) error {
	var refundErr error
	if toolPrice > 0 {
		if err := s.ledger.RefundCredits(ctx, toolPrice, stageLabel); err != nil {
			refundErr = err
			s.logger.ErrorContext(ctx, "refund: credit refund failed", "job_id", jobID, "stage", stageLabel, "error", err)
		}
	}

	if tgUserID != "" {
		if err := s.notifier.NotifyFailure(ctx, tgUserID, jobID, failureReason); err != nil {
			s.logger.WarnContext(ctx, "refund: failure notification failed", "job_id", jobID, "tg_user_id", tgUserID, "error", err)
		}
	}

	return refundErr
}
