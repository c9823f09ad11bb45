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

// Package pipeline holds the types shared by every pipeline stage: the
// job fingerprint, the Job Record, and the credit/rate-limiter entries
// the ledger and rate limiter packages persist.
package pipeline

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// Tool identifies a supported external-processor operation.
type Tool string

const (
	ToolUpscaleImage          Tool = "upscaleimage"
	ToolRemoveBackgroundImage Tool = "removebackgroundimage"
	ToolImagePDF              Tool = "imagepdf"
	ToolMerge                 Tool = "merge"
	ToolCompress              Tool = "compress"
)

// FileType classifies the submitted file per the external processor's
// expectations.
type FileType string

const (
	FileTypeDocImage FileType = "doc/image"
	FileTypeImage    FileType = "image"
	FileTypePDF      FileType = "pdf"
)

// PaymentMethod records which pool a job's credits were drawn from.
type PaymentMethod string

const (
	PaymentMethodUserCredit   PaymentMethod = "user_credit"
	PaymentMethodSharedCredit PaymentMethod = "shared_credit"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageTask       Stage = "task"
	StageDownloader Stage = "downloader"
)

// StageState is the terminal outcome of a stage.
type StageState string

const (
	StageCompleted StageState = "completed"
	StageFailed    StageState = "failed"
)

// TransactionType names a ledger transaction kind.
type TransactionType string

const (
	TxnInit    TransactionType = "init"
	TxnConsume TransactionType = "consume"
	TxnRefund  TransactionType = "refund"
)

// Fingerprint computes the stable job correlation key: SHA-1 of
// userId‖tool‖unix-seconds, per spec GLOSSARY. userID may be either the
// shared-credit user id or the telegram user id; callers pass whichever
// identity the submission carries.
func Fingerprint(userID string, tool Tool, submittedAt time.Time) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%d", userID, tool, submittedAt.Unix())
	return hex.EncodeToString(h.Sum(nil))
}

// FileLink is one or more source URLs for the submission; most tools take
// exactly one, merge takes an ordered list.
type FileLink struct {
	URLs             []string `json:"urls"`
	DownloadFilename string   `json:"download_filename"`
}

// WorkerStats captures the per-stage timing/attempt bookkeeping that
// accompanies every Task/Downloader stage result, success or failure.
type WorkerStats struct {
	CreatedAt   time.Time `json:"created_at"`
	ProcessedAt time.Time `json:"processed_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	AttemptsStarted int   `json:"ats"`
	AttemptsMade    int   `json:"atm"`
	DelayMillis     int64 `json:"delay"`
	Priority        int   `json:"priority"`
}

// TaskResult is what the external processor returns from a submit call:
// the server that will host the work, the task id on that server, and the
// files it produced identifiers for.
type TaskResult struct {
	Server string   `json:"server"`
	TaskID string   `json:"task_id"`
	Files  []string `json:"files"`
}

// WorkerError is a structured stage failure, stored as JSON in the job
// log and surfaced to the refund supervisor / notifier.
type WorkerError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e *WorkerError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// JobRecord is the in-flight representation of a submission as it moves
// through ingress, the task worker, the webhook, and the downloader
// worker. It is not the persisted job-log row (see internal/joblog) —
// it is the payload threaded through the queues and worker code.
type JobRecord struct {
	JobID         string            `json:"job_id"`
	UserID        string            `json:"user_id,omitempty"`
	TgUserID      string            `json:"tg_user_id,omitempty"`
	Tool          Tool              `json:"tool"`
	ToolOptions   map[string]any    `json:"tool_options,omitempty"`
	FileType      FileType          `json:"file_type"`
	FileLink      FileLink          `json:"file_link"`
	ToolPrice     int               `json:"tool_price"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	SubmittedAt   time.Time         `json:"submitted_at"`
	Priority      int               `json:"priority"`

	TaskResult *TaskResult  `json:"task_result,omitempty"`
	TaskError  *WorkerError `json:"task_error,omitempty"`

	// CustomInt/CustomString mirror the correlation tokens sent to the
	// external processor (custom_int = telegram user id, custom_string
	// = job fingerprint) so the webhook payload can be matched back.
	CustomInt    string `json:"custom_int,omitempty"`
	CustomString string `json:"custom_string,omitempty"`
}

// Valid reports whether the identity of userID/tgUserID is well
// formed, returning an error unless exactly one of the two is set.
func (j *JobRecord) Valid() error {
	hasUser := j.UserID != ""
	hasTg := j.TgUserID != ""
	if hasUser == hasTg {
		return fmt.Errorf("pipeline: exactly one of user_id/tg_user_id must be set")
	}
	return nil
}

// CreditPoolEntry is the per-day shared credit row, mirrored between the
// fast store and the durable store.
type CreditPoolEntry struct {
	Date          string    `json:"date"`
	CreditsLeft   int       `json:"credits_left"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedBy     string    `json:"created_by,omitempty"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	LastUpdatedBy string    `json:"last_updated_by,omitempty"`
	Comment       string    `json:"comment,omitempty"`
}

// CreditTransaction is one append-only ledger movement.
type CreditTransaction struct {
	ID        int64           `json:"id"`
	Date      string          `json:"date"`
	Type      TransactionType `json:"type"`
	Amount    int             `json:"amount"`
	Comment   string          `json:"comment,omitempty"`
	RefID     string          `json:"ref_id,omitempty"`
	Details   string          `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RateLimiterEntry is one live key in the per-user rate limiter.
type RateLimiterEntry struct {
	Key      string    `json:"key"`
	Attempts int       `json:"attempts"`
	ExpireAt time.Time `json:"expire_at"`
}

// DateKey formats t as the UTC-date string used to key credit pool rows.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
