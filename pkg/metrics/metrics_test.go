// Copyright 2026 fanjia1024

package metrics

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePrometheus_IncludesRegisteredMetrics(t *testing.T) {
	CreditsLeft.Set(42)
	JobTotal.WithLabelValues("task", "completed", "upscaleimage").Inc()

	var buf bytes.Buffer
	require.NoError(t, WritePrometheus(&buf))

	out := buf.String()
	assert.Contains(t, out, "filebuds_credits_left")
	assert.Contains(t, out, "filebuds_job_total")
}
