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

package joblog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rag-platform/internal/pipeline"
)

// MemStore is an in-process Store for tests and standalone operation.
type MemStore struct {
	mu   sync.Mutex
	rows []*Row
	next int
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) AddJobLog(ctx context.Context, p AddParams) (string, error) {
	if err := validateAdd(p); err != nil {
		return "", err
	}
	stage, outcome, _ := ParseEvent(p.Event)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	row := &Row{
		ID:            fmt.Sprintf("row-%d", s.next),
		JobID:         p.JobID,
		CreatedAt:     time.Now(),
		UserID:        p.UserID,
		TgUserID:      p.TgUserID,
		Tool:          p.Tool,
		ToolOptions:   p.ToolOptions,
		ToolPrice:     p.ToolPrice,
		PaymentMethod: p.PaymentMethod,
		Immutable:     p.Immutable,
		Files:         p.Files,
	}
	applyStage(row, stage, string(outcome), p.WorkerResult, p.WorkerError, p.WorkerStats)
	s.rows = append(s.rows, row)
	return row.ID, nil
}

func (s *MemStore) UpdateWorkerJobLog(ctx context.Context, p UpdateParams) error {
	if err := validateUpdate(p); err != nil {
		return err
	}
	stage, outcome, _ := ParseEvent(p.Event)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if !rowMatches(row, p.Filter) {
			continue
		}
		if row.Immutable {
			// Immutability invariant: once set, no subsequent write
			// changes any stage field.
			continue
		}
		var result *pipeline.TaskResult
		applyStageGeneric(row, stage, string(outcome), p.WorkerResult, p.WorkerError, p.WorkerStats)
		_ = result
		row.Immutable = row.Immutable || p.Immutable
	}
	return nil
}

func rowMatches(row *Row, filter map[string]any) bool {
	for key, want := range filter {
		var got any
		switch key {
		case "job_id":
			got = row.JobID
		case "user_id":
			got = row.UserID
		case "tg_user_id":
			got = row.TgUserID
		case "tool":
			got = string(row.Tool)
		case "tool_price":
			got = row.ToolPrice
		case "payment_method":
			got = string(row.PaymentMethod)
		case "id":
			got = row.ID
		default:
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func applyStage(row *Row, stage pipeline.Stage, outcome string, result *pipeline.TaskResult, werr *pipeline.WorkerError, stats *pipeline.WorkerStats) {
	switch stage {
	case pipeline.StageTask:
		row.TaskWorkerState = outcome
		row.TaskWorkerResult = result
		row.TaskWorkerError = werr
		row.TaskWorkerStats = stats
	case pipeline.StageDownloader:
		row.DownloaderWorkerState = outcome
		row.DownloaderWorkerError = werr
		row.DownloaderWorkerStats = stats
	}
}

func applyStageGeneric(row *Row, stage pipeline.Stage, outcome string, result map[string]any, werr *pipeline.WorkerError, stats *pipeline.WorkerStats) {
	switch stage {
	case pipeline.StageTask:
		row.TaskWorkerState = outcome
		row.TaskWorkerError = werr
		row.TaskWorkerStats = stats
	case pipeline.StageDownloader:
		row.DownloaderWorkerState = outcome
		row.DownloaderWorkerResult = result
		row.DownloaderWorkerError = werr
		row.DownloaderWorkerStats = stats
	}
}

// FindByJobID returns a copy of all rows for jobID, for test assertions.
func (s *MemStore) FindByJobID(jobID string) []*Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Row
	for _, r := range s.rows {
		if r.JobID == jobID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}
