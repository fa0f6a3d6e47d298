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

import "time"

// Config configures a smartselect server.
type Config struct {
	// ApiUrl is the address the HTTP API listens on.
	ApiUrl string `json:"api_url" yaml:"api_url"`

	// ModelsDir is scanned for model images: name.tcm files, or name/model.tcm.
	ModelsDir string `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`

	// ModelPath loads a single additional model image.
	ModelPath string `json:"model_path,omitempty" yaml:"model_path,omitempty"`

	// CacheTTL is how long annotation and classification results are cached
	// (0 = ResultCacheTTL).
	CacheTTL time.Duration `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`

	// MaxConcurrentRequests caps in-flight inference requests (0 = unlimited).
	MaxConcurrentRequests int `json:"max_concurrent_requests,omitempty" yaml:"max_concurrent_requests,omitempty"`

	// MaxQueueSize caps requests waiting for a slot (0 = unbounded).
	MaxQueueSize int `json:"max_queue_size,omitempty" yaml:"max_queue_size,omitempty"`

	// RequestTimeout bounds the wait for a slot (0 = wait for the client).
	RequestTimeout time.Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`

	// RegexMatchTimeout bounds each override pattern evaluation.
	RegexMatchTimeout time.Duration `json:"regex_match_timeout,omitempty" yaml:"regex_match_timeout,omitempty"`

	// AnnotateBatchConcurrency caps parallel texts in one batch annotate
	// request (0 = number of CPUs).
	AnnotateBatchConcurrency int `json:"annotate_batch_concurrency,omitempty" yaml:"annotate_batch_concurrency,omitempty"`

	// MaxRequestBytes caps the size of an API request body (0 = unlimited).
	MaxRequestBytes int64 `json:"max_request_bytes,omitempty" yaml:"max_request_bytes,omitempty"`

	// MaxAnnotateTexts caps the texts in one annotate request (0 = unlimited).
	MaxAnnotateTexts int `json:"max_annotate_texts,omitempty" yaml:"max_annotate_texts,omitempty"`
}

const (
	// DefaultMaxRequestBytes is the default cap on API request bodies.
	DefaultMaxRequestBytes = 1 << 20
	// DefaultMaxAnnotateTexts is the default cap on texts per annotate request.
	DefaultMaxAnnotateTexts = 256
)

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		ApiUrl:                "http://localhost:11435",
		CacheTTL:              ResultCacheTTL,
		MaxConcurrentRequests: 64,
		MaxQueueSize:          256,
		RequestTimeout:        30 * time.Second,
		MaxRequestBytes:       DefaultMaxRequestBytes,
		MaxAnnotateTexts:      DefaultMaxAnnotateTexts,
	}
}
