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

// Package smartselect serves smart selection, smart sharing and annotation
// models over HTTP.
package smartselect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SmartSelectNode holds the state shared by the HTTP handlers.
type SmartSelectNode struct {
	logger *zap.Logger

	registry *ModelRegistry
	service  *Service
	cache    *ResultCache

	// Request queue for backpressure control
	requestQueue *RequestQueue

	maxRequestBytes  int64
	maxAnnotateTexts int
}

// NewSmartSelectNode builds a node around an already loaded registry. A nil
// cache disables result caching.
func NewSmartSelectNode(zl *zap.Logger, config Config, registry *ModelRegistry, cache *ResultCache) *SmartSelectNode {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &SmartSelectNode{
		logger:   zl,
		registry: registry,
		service:  NewService(registry, cache, config.AnnotateBatchConcurrency, zl.Named("service")),
		cache:    cache,
		requestQueue: NewRequestQueue(RequestQueueConfig{
			MaxConcurrentRequests: config.MaxConcurrentRequests,
			MaxQueueSize:          config.MaxQueueSize,
			RequestTimeout:        config.RequestTimeout,
		}, zl.Named("queue")),
		maxRequestBytes:  config.MaxRequestBytes,
		maxAnnotateTexts: config.MaxAnnotateTexts,
	}
}

// Service returns the inference service behind the handlers.
func (ln *SmartSelectNode) Service() *Service {
	return ln.service
}

// Handler returns the root handler: health endpoints, metrics and the API.
func (ln *SmartSelectNode) Handler() http.Handler {
	rootMux := http.NewServeMux()

	// Health endpoints (outside /api prefix for k8s compatibility)
	rootMux.HandleFunc("GET /healthz", ln.handleHealthz)
	rootMux.HandleFunc("GET /readyz", ln.handleReadyz)
	rootMux.Handle("GET /metrics", promhttp.Handler())

	rootMux.Handle("/api/", NewSmartSelectAPI(ln))

	return corsMiddleware(rootMux)
}

// corsMiddleware adds permissive CORS headers for the API
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, Origin")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// DefaultShutdownTimeout is the default time to wait for graceful shutdown
const DefaultShutdownTimeout = 30 * time.Second

// RunAsSmartSelect loads the configured models and serves the API until ctx
// is cancelled. If readyC is non-nil, it will be closed when the server is
// ready to accept requests.
func RunAsSmartSelect(ctx context.Context, zl *zap.Logger, config Config, readyC chan struct{}) error {
	zl = zl.Named("smartselect")
	zl.Info("Starting smartselect node", zap.Any("config", config))

	u, err := url.Parse(config.ApiUrl)
	if err != nil {
		return fmt.Errorf("invalid API URL %q: %w", config.ApiUrl, err)
	}

	registry, err := NewModelRegistry(RegistryConfig{
		ModelsDir:         config.ModelsDir,
		ModelPath:         config.ModelPath,
		RegexMatchTimeout: config.RegexMatchTimeout,
	}, zl.Named("registry"))
	if err != nil {
		return fmt.Errorf("loading models: %w", err)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			zl.Warn("Closing models", zap.Error(err))
		}
	}()
	if registry.Len() == 0 {
		zl.Warn("No models loaded, readiness checks will fail",
			zap.String("models_dir", config.ModelsDir),
			zap.String("model_path", config.ModelPath))
	}

	cache := NewResultCache(config.CacheTTL, zl.Named("cache"))
	defer cache.Close()

	node := NewSmartSelectNode(zl, config, registry, cache)

	srv := &http.Server{
		Addr:              u.Host,
		Handler:           node.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		zl.Info("API server starting", zap.String("address", config.ApiUrl))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Signal readiness after server starts
	if readyC != nil {
		close(readyC)
	}

	// Wait for context cancellation or server error
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	case <-ctx.Done():
		zl.Info("Shutdown signal received, starting graceful shutdown...")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections
	srv.SetKeepAlivesEnabled(false)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("Graceful shutdown failed, forcing close",
			zap.Error(err),
			zap.Duration("timeout", DefaultShutdownTimeout))
		_ = srv.Close()
	} else {
		zl.Info("Graceful shutdown completed successfully")
	}

	zl.Info("HTTP server stopped")
	return nil
}
