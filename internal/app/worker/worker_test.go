// Copyright 2026 fanjia1024

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rag-platform/internal/app"
	"rag-platform/internal/appconfig"
)

func testBootstrap(t *testing.T) *app.Bootstrap {
	t.Helper()
	cfg := &appconfig.Config{
		WorkerConcurrency: 1,
		LockDuration:      50 * time.Millisecond,
		LockRenewTime:     20 * time.Millisecond,
		StalledInterval:   30 * time.Millisecond,
		ReconcileInterval: 20 * time.Millisecond,
		RateLimitTTL:      time.Minute,
		RateLimitMax:      250,
	}
	b, err := app.NewBootstrap(context.Background(), cfg)
	require.NoError(t, err)
	return b
}

func TestApp_StartAndShutdown(t *testing.T) {
	b := testBootstrap(t)
	a, err := NewApp(b)
	require.NoError(t, err)

	require.NoError(t, a.Start())
	time.Sleep(60 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	b := testBootstrap(t)
	a, err := NewApp(b)
	require.NoError(t, err)
	require.NoError(t, a.Start())

	ctx := context.Background()
	require.NoError(t, a.Shutdown(ctx))
	require.NoError(t, a.Shutdown(ctx))
}
