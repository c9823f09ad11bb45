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

// Package worker assembles the task stage worker, downloader stage
// worker, stalled-claim sweeper, and reconciliation loop into the
// single long-running process cmd/worker starts: a Start/Shutdown
// pair around a set of background goroutines stopped via a cancelable
// context plus a guarded shutdown channel.
package worker

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"rag-platform/internal/app"
	"rag-platform/internal/ledger"
	"rag-platform/internal/pipeline/downloaderworker"
	"rag-platform/internal/pipeline/taskworker"
	"rag-platform/internal/queue"
	"rag-platform/internal/reconcile"
	"rag-platform/internal/refund"
	"rag-platform/pkg/metrics"
	"rag-platform/pkg/utils"
)

// App runs every background component of the worker binary.
type App struct {
	bootstrap *app.Bootstrap

	taskWorker     *taskworker.Worker
	downloadWorker *downloaderworker.Worker
	reconcileLoop  *reconcile.Loop

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown chan struct{}
	once     sync.Once

	metricsServer *http.Server
}

// NewApp wires the Task/Downloader workers, the Refund & Notify
// Supervisor they both call into on failure, and the reconciliation
// loop, all sharing bootstrap's stores and clients.
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config

	refundSup := refund.New(bootstrap.Ledger, bootstrap.Notifier, bootstrap.Logger)

	taskCfg := taskworker.DefaultConfig()
	taskCfg.Concurrency = utils.DefaultInt(cfg.WorkerConcurrency, taskCfg.Concurrency)
	if cfg.LockDuration > 0 {
		taskCfg.LockDuration = cfg.LockDuration
	}
	if cfg.LockRenewTime > 0 {
		taskCfg.LockRenewTime = cfg.LockRenewTime
	}
	if cfg.StalledInterval > 0 {
		taskCfg.StalledInterval = cfg.StalledInterval
	}
	downloadCfg := downloaderworker.DefaultConfig()
	downloadCfg.Concurrency = taskCfg.Concurrency
	downloadCfg.LockDuration = taskCfg.LockDuration
	downloadCfg.LockRenewTime = taskCfg.LockRenewTime
	downloadCfg.StalledInterval = taskCfg.StalledInterval

	a := &App{
		bootstrap: bootstrap,
		taskWorker: taskworker.New(
			bootstrap.TaskQueue, bootstrap.ILoveAPI, bootstrap.JobLog, refundSup, bootstrap.Notifier, bootstrap.Logger, taskCfg,
		),
		downloadWorker: downloaderworker.New(
			bootstrap.DownloadQueue, bootstrap.ILoveAPI, bootstrap.JobLog, refundSup, bootstrap.Notifier, bootstrap.Logger, downloadCfg,
		),
		reconcileLoop: reconcile.New(bootstrap.Ledger, cfg.ReconcileInterval, bootstrap.Logger),
		shutdown:      make(chan struct{}),
	}
	a.reconcileLoop.OnResult(func(r ledger.CompareResult) {
		metrics.ReconcileDriftGauge.Set(float64(r.Diff))
	})
	return a, nil
}

// Start launches the Task worker, Downloader worker, stalled-claim
// sweeper, and reconciliation loop as background goroutines, plus an
// optional Prometheus endpoint when cfg.Port is set. It returns once
// every goroutine has been launched; it does not block.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.taskWorker.Run(ctx, "task")
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.downloadWorker.Run(ctx, "downloader")
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reconcileLoop.Run(ctx)
	}()

	stalledInterval := a.bootstrap.Config.StalledInterval
	if stalledInterval <= 0 {
		stalledInterval = 60 * time.Second
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sweepStalled(ctx, stalledInterval)
	}()

	if a.bootstrap.Config.Port > 0 {
		a.startMetricsServer()
	}

	return nil
}

// sweepStalled periodically reclaims jobs whose lease went unrenewed,
// on both named queues, and mirrors the counts into metrics.
func (a *App) sweepStalled(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.reclaimOne(ctx, a.bootstrap.TaskQueue, queue.TaskQueueName, interval)
			a.reclaimOne(ctx, a.bootstrap.DownloadQueue, queue.DownloaderQueueName, interval)
		}
	}
}

func (a *App) reclaimOne(ctx context.Context, q queue.Queue, name string, interval time.Duration) {
	n, err := q.ReclaimStalled(ctx, interval)
	if err != nil {
		a.bootstrap.Logger.ErrorContext(ctx, "worker: reclaim stalled jobs failed", "queue", name, "error", err)
		return
	}
	if n > 0 {
		metrics.StalledJobsReclaimedTotal.WithLabelValues(name).Add(float64(n))
	}
	if backlog, err := q.Backlog(ctx); err == nil {
		metrics.QueueBacklog.WithLabelValues(name).Set(float64(backlog))
	}
}

// startMetricsServer exposes /metrics on cfg.Port via a conditional
// Prometheus ListenAndServe started alongside the worker pools.
func (a *App) startMetricsServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = metrics.WritePrometheus(w)
	})
	a.metricsServer = &http.Server{Addr: a.bootstrap.Config.Host + ":" + portString(a.bootstrap.Config.Port), Handler: mux}
	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.bootstrap.Logger.ErrorContext(context.Background(), "worker: metrics server failed", "error", err)
		}
	}()
}

// Shutdown cancels every background goroutine, waits for them (bounded
// by ctx), and releases the shared pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.once.Do(func() { close(a.shutdown) })

	if a.cancel != nil {
		a.cancel()
	}

	if a.metricsServer != nil {
		_ = a.metricsServer.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.bootstrap.Logger.WarnContext(ctx, "worker: shutdown deadline exceeded, background goroutines may still be running")
	}

	a.bootstrap.Close()
	return nil
}

func portString(p int) string {
	if p <= 0 {
		return ""
	}
	return strconv.Itoa(p)
}
