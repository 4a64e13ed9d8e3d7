// Copyright 2026 The gVisor Authors.
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


package log

import (
	"time"

	"golang.org/x/time/rate"

	"gvisor.dev/ukernel/pkg/sync"
)

// RateLimiter lets through at most one log statement per interval. The next
// statement let through after a quiet spell reports how many were dropped.
type RateLimiter struct {
	limit *rate.Limiter

	mu      sync.Mutex
	dropped int
}

// NewRateLimiter returns a RateLimiter that admits one statement every
// interval.
func NewRateLimiter(every time.Duration) *RateLimiter {
	return &RateLimiter{limit: rate.NewLimiter(rate.Every(every), 1)}
}

// Admit reports whether a statement may be logged now. If so, it returns the
// format and arguments to log, extended with the number of statements
// dropped since the last one admitted.
func (r *RateLimiter) Admit(format string, v []any) (string, []any, bool) {
	return r.admitAt(time.Now(), format, v)
}

func (r *RateLimiter) admitAt(now time.Time, format string, v []any) (string, []any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.limit.AllowN(now, 1) {
		r.dropped++
		return "", nil, false
	}
	if r.dropped == 0 {
		return format, v, true
	}
	n := r.dropped
	r.dropped = 0
	return format + " (%d similar messages dropped)", append(v[:len(v):len(v)], n), true
}

// WarningfLimited logs a warning with fields through r.
func (l *BasicLogger) WarningfLimited(r *RateLimiter, fields []Field, format string, v ...any) {
	if !l.IsLogging(Warning) {
		return
	}
	if format, v, ok := r.Admit(format, v); ok {
		l.EmitWithFields(1, Warning, fields, format, v...)
	}
}
