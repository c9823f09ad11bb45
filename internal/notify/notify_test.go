// Copyright 2026 fanjia1024

package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"rag-platform/internal/pipeline"
	"rag-platform/pkg/log"
)

func TestLogNotifier_SatisfiesInterface(t *testing.T) {
	logger, err := log.NewLogger(nil)
	require.NoError(t, err)

	var n Notifier = NewLogNotifier(logger)
	ctx := context.Background()

	require.NoError(t, n.NotifyProcessing(ctx, "tg1", "job1", pipeline.ToolUpscaleImage))
	require.NoError(t, n.NotifyTrackingFailure(ctx, "tg1", "job1"))
	require.NoError(t, n.DeliverArtifact(ctx, "tg1", "job1", pipeline.FileTypeImage, []string{"https://example.com/a.png"}, "a.png", []FollowupAction{{Tool: pipeline.ToolCompress, Label: "Compress"}}))
	require.NoError(t, n.NotifyFailure(ctx, "tg1", "job1", "external service error"))
}
