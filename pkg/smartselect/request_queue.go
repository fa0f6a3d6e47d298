// Copyright 2025 Antfly, Inc.
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

package smartselect

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic/encoder"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrQueueFull is returned when the waiting queue is at capacity.
	ErrQueueFull = errors.New("request queue full")
	// ErrRequestTimeout is returned when a request waited longer than the
	// configured timeout for a slot.
	ErrRequestTimeout = errors.New("request timed out waiting in queue")
)

// RequestQueueConfig bounds request concurrency.
type RequestQueueConfig struct {
	MaxConcurrentRequests int
	MaxQueueSize          int
	RequestTimeout        time.Duration
}

// QueueStats is a snapshot of the queue state.
type QueueStats struct {
	MaxConcurrent int   `json:"max_concurrent"`
	MaxQueueSize  int   `json:"max_queue_size"`
	CurrentActive int64 `json:"current_active"`
	CurrentQueued int64 `json:"current_queued"`
}

// RequestQueue applies backpressure to inference requests.
type RequestQueue struct {
	cfg    RequestQueueConfig
	sem    *semaphore.Weighted
	logger *zap.Logger

	active atomic.Int64
	queued atomic.Int64
}

// NewRequestQueue creates a queue. A MaxConcurrentRequests of zero disables
// limiting.
func NewRequestQueue(cfg RequestQueueConfig, logger *zap.Logger) *RequestQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &RequestQueue{cfg: cfg, logger: logger}
	if cfg.MaxConcurrentRequests > 0 {
		q.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests))
	}
	return q
}

// Acquire blocks until a slot is free. The returned release func must be
// called exactly once.
func (q *RequestQueue) Acquire(ctx context.Context) (func(), error) {
	if q.sem == nil {
		q.active.Add(1)
		return q.release, nil
	}
	if q.sem.TryAcquire(1) {
		q.active.Add(1)
		return q.releaseSlot, nil
	}

	if q.cfg.MaxQueueSize > 0 && q.queued.Load() >= int64(q.cfg.MaxQueueSize) {
		return nil, ErrQueueFull
	}
	q.queued.Add(1)
	defer q.queued.Add(-1)

	waitCtx := ctx
	if q.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, q.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := q.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			q.logger.Debug("Request timed out in queue",
				zap.Duration("waited", time.Since(start)))
			return nil, ErrRequestTimeout
		}
		return nil, ctx.Err()
	}
	RecordQueueWaitTime(time.Since(start).Seconds())
	q.active.Add(1)
	return q.releaseSlot, nil
}

func (q *RequestQueue) release() {
	q.active.Add(-1)
}

func (q *RequestQueue) releaseSlot() {
	q.active.Add(-1)
	q.sem.Release(1)
}

// Stats returns the current queue state.
func (q *RequestQueue) Stats() QueueStats {
	return QueueStats{
		MaxConcurrent: q.cfg.MaxConcurrentRequests,
		MaxQueueSize:  q.cfg.MaxQueueSize,
		CurrentActive: q.active.Load(),
		CurrentQueued: q.queued.Load(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// WriteQueueFullResponse writes a 503 with a Retry-After header.
func WriteQueueFullResponse(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	writeError(w, http.StatusServiceUnavailable, "server busy, request queue full")
}

// WriteTimeoutResponse writes a 504 for requests that timed out in the queue.
func WriteTimeoutResponse(w http.ResponseWriter) {
	writeError(w, http.StatusGatewayTimeout, "request timed out waiting in queue")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = encoder.NewStreamEncoder(w).Encode(errorResponse{Error: msg})
}
