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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"rag-platform/internal/pipeline"
)

// PgStore implements Store against the job-logs table.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS job_logs (
	id                       text PRIMARY KEY,
	job_id                   text NOT NULL,
	created_at               timestamptz NOT NULL DEFAULT now(),
	user_id                  text,
	tg_user_id               text,
	tool                     text NOT NULL,
	tool_options             jsonb,
	tool_price               integer NOT NULL,
	payment_method           text NOT NULL,
	immutable                boolean NOT NULL DEFAULT false,
	files                    jsonb,
	task_worker_state        text,
	task_worker_result       jsonb,
	task_worker_error        jsonb,
	task_worker_stats        jsonb,
	downloader_worker_state  text,
	downloader_worker_result jsonb,
	downloader_worker_error  jsonb,
	downloader_worker_stats  jsonb
);
CREATE INDEX IF NOT EXISTS idx_job_logs_job_id ON job_logs(job_id);
`)
	if err != nil {
		return fmt.Errorf("joblog: ensure schema: %w", err)
	}
	return nil
}

func (s *PgStore) AddJobLog(ctx context.Context, p AddParams) (string, error) {
	if err := validateAdd(p); err != nil {
		return "", err
	}
	stage, outcome, _ := ParseEvent(p.Event)

	toolOptions, err := marshalOrNil(p.ToolOptions)
	if err != nil {
		return "", err
	}
	files, err := marshalOrNil(p.Files)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	taskState, taskResult, taskErr, taskStats := "", []byte(nil), []byte(nil), []byte(nil)
	dlState, dlResult, dlErr, dlStats := "", []byte(nil), []byte(nil), []byte(nil)

	resultJSON, err := marshalOrNil(p.WorkerResult)
	if err != nil {
		return "", err
	}
	errJSON, err := marshalOrNil(p.WorkerError)
	if err != nil {
		return "", err
	}
	statsJSON, err := marshalOrNil(p.WorkerStats)
	if err != nil {
		return "", err
	}
	switch stage {
	case pipeline.StageTask:
		taskState, taskResult, taskErr, taskStats = string(outcome), resultJSON, errJSON, statsJSON
	case pipeline.StageDownloader:
		dlState, dlResult, dlErr, dlStats = string(outcome), resultJSON, errJSON, statsJSON
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO job_logs (
	id, job_id, user_id, tg_user_id, tool, tool_options, tool_price, payment_method,
	immutable, files,
	task_worker_state, task_worker_result, task_worker_error, task_worker_stats,
	downloader_worker_state, downloader_worker_result, downloader_worker_error, downloader_worker_stats
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
`, id, p.JobID, nullIfEmptyStr(p.UserID), nullIfEmptyStr(p.TgUserID), string(p.Tool), toolOptions, p.ToolPrice,
		string(p.PaymentMethod), p.Immutable, files,
		nullIfEmptyStr(taskState), taskResult, taskErr, taskStats,
		nullIfEmptyStr(dlState), dlResult, dlErr, dlStats,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *PgStore) UpdateWorkerJobLog(ctx context.Context, p UpdateParams) error {
	if err := validateUpdate(p); err != nil {
		return err
	}
	stage, outcome, _ := ParseEvent(p.Event)
	prefix := stageFieldPrefix(stage)

	resultJSON, err := marshalOrNil(p.WorkerResult)
	if err != nil {
		return err
	}
	errJSON, err := marshalOrNil(p.WorkerError)
	if err != nil {
		return err
	}
	statsJSON, err := marshalOrNil(p.WorkerStats)
	if err != nil {
		return err
	}

	var setClauses []string
	args := []any{}
	argN := 1
	add := func(clause string, val any) {
		setClauses = append(setClauses, fmt.Sprintf(clause, argN))
		args = append(args, val)
		argN++
	}
	add(prefix+"_state = $%d", string(outcome))
	add(prefix+"_result = $%d", resultJSON)
	add(prefix+"_error = $%d", errJSON)
	add(prefix+"_stats = $%d", statsJSON)
	add("immutable = immutable OR $%d", p.Immutable)

	var whereClauses []string
	for key, val := range p.Filter {
		whereClauses = append(whereClauses, fmt.Sprintf("%s = $%d", key, argN))
		args = append(args, val)
		argN++
	}

	query := fmt.Sprintf(
		"UPDATE job_logs SET %s WHERE immutable = false AND %s",
		strings.Join(setClauses, ", "),
		strings.Join(whereClauses, " AND "),
	)
	_, err = s.pool.Exec(ctx, query, args...)
	return err
}

func marshalOrNil(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

func nullIfEmptyStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
