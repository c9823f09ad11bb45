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

package ratelimit

import "golang.org/x/time/rate"

// ThroughputGuard is a global admission backstop layered on top of the
// per-key fixed-window Limiter: a token-bucket cap on the total rate of
// admitted attempts/sec, independent of which user they come from. It
// composes with Limiter rather than replacing it — the per-key
// fixed-window semantics are unchanged; this only protects against a
// burst of distinct keys each individually within their own window.
type ThroughputGuard struct {
	limiter *rate.Limiter
}

// NewThroughputGuard builds a guard admitting up to ratePerSec sustained
// attempts/sec with room for a burst of size burst.
func NewThroughputGuard(ratePerSec float64, burst int) *ThroughputGuard {
	return &ThroughputGuard{limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Allow reports whether one more attempt may be admitted right now.
func (g *ThroughputGuard) Allow() bool {
	return g.limiter.Allow()
}
