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

// Package joblog is the Job Log / Audit Store: every stage
// transition and its statistics, persisted as one row per job (patched
// in place as the downloader stage terminates). Grounded in the upsert-
// by-key repo shape of internal/storage/metadata, adapted to this
// domain's job-logs table.
package joblog

import (
	"context"
	"fmt"
	"strings"
	"time"

	pkgerrors "rag-platform/pkg/errors"
	"rag-platform/internal/pipeline"
)

// Row is one job-logs table row.
type Row struct {
	ID                     string
	JobID                  string
	CreatedAt              time.Time
	UserID                 string
	TgUserID               string
	Tool                   pipeline.Tool
	ToolOptions            map[string]any
	ToolPrice              int
	PaymentMethod          pipeline.PaymentMethod
	Immutable              bool
	Files                  []string
	TaskWorkerState        string
	TaskWorkerResult       *pipeline.TaskResult
	TaskWorkerError        *pipeline.WorkerError
	TaskWorkerStats        *pipeline.WorkerStats
	DownloaderWorkerState  string
	DownloaderWorkerResult map[string]any
	DownloaderWorkerError  *pipeline.WorkerError
	DownloaderWorkerStats  *pipeline.WorkerStats
}

// AddParams is addJobLog's argument set.
type AddParams struct {
	Event         string
	JobID         string
	UserID        string // exactly one of UserID/TgUserID set
	TgUserID      string
	Immutable     bool
	Tool          pipeline.Tool
	ToolPrice     int
	ToolOptions   map[string]any
	PaymentMethod pipeline.PaymentMethod
	Files         []string
	WorkerResult  *pipeline.TaskResult
	WorkerError   *pipeline.WorkerError
	WorkerStats   *pipeline.WorkerStats
}

// UpdateParams is updateWorkerJobLog's argument set. Filter
// must carry at least two predicates and may not reference immutable or
// any *_worker_state column, to prevent an accidentally-broad write.
type UpdateParams struct {
	Event        string
	Filter       map[string]any
	Immutable    bool
	WorkerResult map[string]any
	WorkerError  *pipeline.WorkerError
	WorkerStats  *pipeline.WorkerStats
}

// Store is the C7 contract.
type Store interface {
	AddJobLog(ctx context.Context, p AddParams) (id string, err error)
	UpdateWorkerJobLog(ctx context.Context, p UpdateParams) error
}

// ParseEvent splits "{stage}.{outcome}" into its parts, validating both
// halves against the known enums.
func ParseEvent(event string) (pipeline.Stage, pipeline.StageState, error) {
	parts := strings.SplitN(event, ".", 2)
	if len(parts) != 2 {
		return "", "", pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "joblog: malformed event %q", event)
	}
	stage := pipeline.Stage(parts[0])
	outcome := pipeline.StageState(parts[1])
	switch stage {
	case pipeline.StageTask, pipeline.StageDownloader:
	default:
		return "", "", pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "joblog: unknown stage %q", parts[0])
	}
	switch outcome {
	case pipeline.StageCompleted, pipeline.StageFailed:
	default:
		return "", "", pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "joblog: unknown outcome %q", parts[1])
	}
	return stage, outcome, nil
}

func validateAdd(p AddParams) error {
	if p.JobID == "" {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "joblog: job_id required")
	}
	if _, _, err := ParseEvent(p.Event); err != nil {
		return err
	}
	hasUser := p.UserID != ""
	hasTg := p.TgUserID != ""
	if hasUser == hasTg {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "joblog: exactly one of user_id/tg_user_id must be set")
	}
	return nil
}

var forbiddenFilterSuffixes = []string{"_worker_state"}

// allowedFilterColumns is the fixed set of real job_logs columns a
// filter predicate may name — both to enforce "at least two predicates,
// never immutable/*_worker_state" and, in PgStore, to keep filter keys
// out of raw SQL interpolation.
var allowedFilterColumns = map[string]bool{
	"id": true, "job_id": true, "user_id": true, "tg_user_id": true,
	"tool": true, "tool_price": true, "payment_method": true,
}

func validateUpdate(p UpdateParams) error {
	if _, _, err := ParseEvent(p.Event); err != nil {
		return err
	}
	if len(p.Filter) < 2 {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "joblog: filter must carry at least two predicates")
	}
	for key := range p.Filter {
		if key == "immutable" {
			return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "joblog: filter may not reference immutable")
		}
		for _, suffix := range forbiddenFilterSuffixes {
			if strings.HasSuffix(key, suffix) {
				return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "joblog: filter may not reference %q", key)
			}
		}
		if !allowedFilterColumns[key] {
			return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "joblog: filter references unknown column %q", key)
		}
	}
	return nil
}

// stageFieldPrefix returns the column-name prefix ("task_worker" or
// "downloader_worker") that an event's stage maps to, used by store
// implementations to build the patch.
func stageFieldPrefix(stage pipeline.Stage) string {
	return fmt.Sprintf("%s_worker", stage)
}
