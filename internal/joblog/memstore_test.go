// Copyright 2026 fanjia1024
// Tests for the Job Log Store

package joblog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-platform/internal/pipeline"
)

func TestParseEvent(t *testing.T) {
	stage, outcome, err := ParseEvent("task.completed")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageTask, stage)
	assert.Equal(t, pipeline.StageCompleted, outcome)

	_, _, err = ParseEvent("bogus")
	require.Error(t, err)

	_, _, err = ParseEvent("task.unknown")
	require.Error(t, err)
}

func TestAddJobLog_RequiresExactlyOneUserIdentity(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	_, err := s.AddJobLog(ctx, AddParams{Event: "task.completed", JobID: "j1"})
	require.Error(t, err, "neither user_id nor tg_user_id set")

	_, err = s.AddJobLog(ctx, AddParams{Event: "task.completed", JobID: "j1", UserID: "u1", TgUserID: "t1"})
	require.Error(t, err, "both set")

	_, err = s.AddJobLog(ctx, AddParams{Event: "task.completed", JobID: "j1", TgUserID: "t1"})
	require.NoError(t, err)
}

func TestAddJobLog_SetsStageFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	id, err := s.AddJobLog(ctx, AddParams{
		Event: "task.completed", JobID: "j1", TgUserID: "185150",
		Tool: pipeline.ToolUpscaleImage, ToolPrice: 20,
		WorkerResult: &pipeline.TaskResult{Server: "api8g.example.com", TaskID: "T1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rows := s.FindByJobID("j1")
	require.Len(t, rows, 1)
	assert.Equal(t, "completed", rows[0].TaskWorkerState)
	assert.False(t, rows[0].Immutable)
	assert.Equal(t, "T1", rows[0].TaskWorkerResult.TaskID)
}

func TestUpdateWorkerJobLog_FilterRequiresTwoPredicates(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	err := s.UpdateWorkerJobLog(ctx, UpdateParams{
		Event:  "downloader.completed",
		Filter: map[string]any{"job_id": "j1"},
	})
	require.Error(t, err)
}

func TestUpdateWorkerJobLog_RejectsImmutableOrStateInFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	err := s.UpdateWorkerJobLog(ctx, UpdateParams{
		Event:  "downloader.completed",
		Filter: map[string]any{"job_id": "j1", "immutable": true},
	})
	require.Error(t, err)

	err = s.UpdateWorkerJobLog(ctx, UpdateParams{
		Event:  "downloader.completed",
		Filter: map[string]any{"job_id": "j1", "task_worker_state": "completed"},
	})
	require.Error(t, err)
}

// Job correlation + immutability: patching the downloader stage sets
// immutable=true, and the row that already has immutable=true refuses
// further stage-field mutation.
func TestUpdateWorkerJobLog_PatchesAndThenImmutable(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_, err := s.AddJobLog(ctx, AddParams{
		Event: "task.completed", JobID: "j1", TgUserID: "185150",
		Tool: pipeline.ToolUpscaleImage, ToolPrice: 20,
	})
	require.NoError(t, err)

	err = s.UpdateWorkerJobLog(ctx, UpdateParams{
		Event:     "downloader.completed",
		Filter:    map[string]any{"job_id": "j1", "tg_user_id": "185150"},
		Immutable: true,
	})
	require.NoError(t, err)

	rows := s.FindByJobID("j1")
	require.Len(t, rows, 1)
	assert.Equal(t, "completed", rows[0].DownloaderWorkerState)
	assert.True(t, rows[0].Immutable)

	// a subsequent write must not change any stage field
	err = s.UpdateWorkerJobLog(ctx, UpdateParams{
		Event:     "downloader.failed",
		Filter:    map[string]any{"job_id": "j1", "tg_user_id": "185150"},
		Immutable: true,
	})
	require.NoError(t, err)
	rows = s.FindByJobID("j1")
	assert.Equal(t, "completed", rows[0].DownloaderWorkerState, "immutable row must not change")
}

func TestValidateUpdate_RejectsUnknownColumn(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	err := s.UpdateWorkerJobLog(ctx, UpdateParams{
		Event:  "downloader.completed",
		Filter: map[string]any{"job_id": "j1", "bogus_column": "x"},
	})
	require.Error(t, err)
}
