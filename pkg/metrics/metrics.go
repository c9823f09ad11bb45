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

package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// DefaultRegistry is the process-wide registry the API and worker
// binaries both register into and expose via WritePrometheus.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		CreditsLeft, CreditTransactionsTotal,
		JobTotal, JobDurationSeconds,
		QueueBacklog, StalledJobsReclaimedTotal,
		RateLimitRejectionsTotal, RateLimitLiveKeys,
		JobLogImmutableRowsTotal,
		ReconcileDriftGauge,
	)
}

// CreditsLeft is today's shared-credit pool balance, as last observed
// by the reconciliation loop or a ledger read.
var CreditsLeft = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "filebuds_credits_left",
		Help: "Shared credit pool balance for the current day",
	},
)

// CreditTransactionsTotal counts ledger movements by type
// (init|consume|refund).
var CreditTransactionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "filebuds_credit_transactions_total",
		Help: "Ledger transactions by type",
	},
	[]string{"type"},
)

// JobTotal counts pipeline jobs by stage and outcome
// (task|downloader, completed|failed).
var JobTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "filebuds_job_total",
		Help: "Pipeline jobs processed, by stage and outcome",
	},
	[]string{"stage", "outcome", "tool"},
)

// JobDurationSeconds measures stage processing time from claim to
// completion/failure.
var JobDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "filebuds_job_duration_seconds",
		Help:    "Stage processing duration",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"stage"},
)

// QueueBacklog is the pending job count per named queue.
var QueueBacklog = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "filebuds_queue_backlog",
		Help: "Pending jobs per named queue",
	},
	[]string{"queue"},
)

// StalledJobsReclaimedTotal counts jobs the sweeper reassigned after a
// lease went unrenewed past stalledInterval.
var StalledJobsReclaimedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "filebuds_stalled_jobs_reclaimed_total",
		Help: "Jobs reclaimed by the stalled-claim sweeper",
	},
	[]string{"queue"},
)

// RateLimitRejectionsTotal counts per-user rate limiter rejections.
var RateLimitRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "filebuds_rate_limit_rejections_total",
		Help: "Rate limiter rejections",
	},
	[]string{"reason"}, // key_exhausted | global_cap
)

// RateLimitLiveKeys is the current number of live rate-limiter keys,
// bounded by Config.Max.
var RateLimitLiveKeys = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "filebuds_rate_limit_live_keys",
		Help: "Live rate limiter keys",
	},
)

// JobLogImmutableRowsTotal counts job-log rows that became immutable,
// i.e. reached a terminal state.
var JobLogImmutableRowsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "filebuds_job_log_immutable_rows_total",
		Help: "Job log rows that became immutable",
	},
	[]string{"stage"},
)

// ReconcileDriftGauge is the last observed fast-vs-durable credit drift.
var ReconcileDriftGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "filebuds_reconcile_drift",
		Help: "Last observed drift between fast and durable credit stores",
	},
)

// WritePrometheus writes the registry in Prometheus text exposition
// format to w.
func WritePrometheus(w io.Writer) error {
	families, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
