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

// Package reconcile runs a ticker-driven loop comparing the fast and
// durable credit stores and reporting any drift between them.
// It never mutates either store — it only reports drift.
package reconcile

import (
	"context"
	"time"

	"rag-platform/internal/ledger"
	"rag-platform/pkg/log"
)

// Comparer is the subset of *ledger.Ledger the loop needs.
type Comparer interface {
	CompareCreditsLeft(ctx context.Context) (ledger.CompareResult, error)
}

// Loop periodically compares credit stores and logs any drift.
type Loop struct {
	ledger   Comparer
	interval time.Duration
	logger   *log.Logger
	onResult func(ledger.CompareResult)
}

func New(l Comparer, interval time.Duration, logger *log.Logger) *Loop {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Loop{ledger: l, interval: interval, logger: logger}
}

// OnResult installs a callback invoked after every comparison, useful
// for wiring a metrics gauge without this package depending on
// pkg/metrics directly.
func (l *Loop) OnResult(fn func(ledger.CompareResult)) {
	l.onResult = fn
}

// Run blocks until ctx is cancelled, comparing on every tick.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	result, err := l.ledger.CompareCreditsLeft(ctx)
	if err != nil {
		l.logger.ErrorContext(ctx, "reconcile: compare failed", "error", err)
		return
	}
	if !result.Equal {
		l.logger.WarnContext(ctx, "reconcile: credit stores disagree", "fast", result.Fast, "durable", result.Durable, "diff", result.Diff)
	}
	if l.onResult != nil {
		l.onResult(result)
	}
}
