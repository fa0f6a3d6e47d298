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
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/classification"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/encoder"
	"go.uber.org/zap"
)

// SuggestRequest asks for a selection around [Begin, End) of Text.
type SuggestRequest struct {
	Model string `json:"model,omitempty"`
	Text  string `json:"text"`
	Begin int    `json:"begin"`
	End   int    `json:"end"`
}

// SuggestResponse is the suggested selection in codepoints.
type SuggestResponse struct {
	Model string `json:"model"`
	Begin int    `json:"begin"`
	End   int    `json:"end"`
}

// ClassifyRequest asks for the collections of [Begin, End) of Text.
type ClassifyRequest struct {
	Model   string `json:"model,omitempty"`
	Text    string `json:"text"`
	Begin   int    `json:"begin"`
	End     int    `json:"end"`
	IsURL   bool   `json:"is_url,omitempty"`
	IsEmail bool   `json:"is_email,omitempty"`
}

// ClassifyResponse holds the ranked collections, best first.
type ClassifyResponse struct {
	Model          string               `json:"model"`
	Classification span.Classification `json:"classification"`
}

// AnnotateRequest annotates Texts, or Text when Texts is empty.
type AnnotateRequest struct {
	Model string   `json:"model,omitempty"`
	Text  string   `json:"text,omitempty"`
	Texts []string `json:"texts,omitempty"`
}

// AnnotateResponse holds one span list per input text.
type AnnotateResponse struct {
	Model       string                 `json:"model"`
	Annotations [][]span.AnnotatedSpan `json:"annotations"`
}

// ModelsResponse lists the loaded models.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// VersionResponse reports build information.
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// NewSmartSelectAPI returns the handler for the /api/ routes.
func NewSmartSelectAPI(node *SmartSelectNode) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/suggest", node.handleApiSuggest)
	mux.HandleFunc("POST /api/classify", node.handleApiClassify)
	mux.HandleFunc("POST /api/annotate", node.handleApiAnnotate)
	mux.HandleFunc("GET /api/models", node.handleApiModels)
	mux.HandleFunc("GET /api/version", node.handleApiVersion)
	return mux
}

// acquire applies backpressure via the request queue. It writes the error
// response and returns false when the request must not proceed.
func (ln *SmartSelectNode) acquire(w http.ResponseWriter, r *http.Request) (func(), bool) {
	release, err := ln.requestQueue.Acquire(r.Context())
	if err != nil {
		switch err {
		case ErrQueueFull:
			RecordQueueRejection()
			WriteQueueFullResponse(w, 5*time.Second)
		case ErrRequestTimeout:
			RecordQueueTimeout()
			WriteTimeoutResponse(w)
		default:
			// Context cancelled
			http.Error(w, "request cancelled", http.StatusRequestTimeout)
		}
		return nil, false
	}

	// Update queue metrics
	UpdateQueueMetrics(ln.requestQueue.Stats())
	return release, true
}

// writeServiceError maps a Service error to a status and returns the status.
func writeServiceError(w http.ResponseWriter, err error) int {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrModelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}
	http.Error(w, err.Error(), status)
	return status
}

// decodeRequest reads a JSON body of at most maxRequestBytes into v. It writes
// the error response and returns false on failure.
func (ln *SmartSelectNode) decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	body := io.Reader(r.Body)
	if ln.maxRequestBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, ln.maxRequestBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, fmt.Sprintf("reading request: %v", err), http.StatusBadRequest)
		return false
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		http.Error(w, fmt.Sprintf("decoding request: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = encoder.NewStreamEncoder(w).Encode(v)
}

func recordRequest(endpoint, model string, status int, start time.Time) {
	RecordRequestDuration(endpoint, model, strconv.Itoa(status), time.Since(start).Seconds())
}

// handleApiSuggest handles selection suggestion requests
func (ln *SmartSelectNode) handleApiSuggest(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	start := time.Now()

	release, ok := ln.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	var req SuggestRequest
	if !ln.decodeRequest(w, r, &req) {
		return
	}
	model, err := ln.registry.Get(req.Model)
	if err != nil {
		recordRequest("suggest", req.Model, writeServiceError(w, err), start)
		return
	}

	sel, err := ln.service.SuggestSelection(r.Context(), model.Name(), req.Text, span.CodepointSpan{Begin: req.Begin, End: req.End})
	if err != nil {
		recordRequest("suggest", model.Name(), writeServiceError(w, err), start)
		return
	}

	writeJSON(w, SuggestResponse{Model: model.Name(), Begin: sel.Begin, End: sel.End})
	recordRequest("suggest", model.Name(), http.StatusOK, start)
}

// handleApiClassify handles classification requests
func (ln *SmartSelectNode) handleApiClassify(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	start := time.Now()

	release, ok := ln.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	var req ClassifyRequest
	if !ln.decodeRequest(w, r, &req) {
		return
	}
	model, err := ln.registry.Get(req.Model)
	if err != nil {
		recordRequest("classify", req.Model, writeServiceError(w, err), start)
		return
	}

	var flags classification.InputFlags
	if req.IsURL {
		flags |= classification.IsURL
	}
	if req.IsEmail {
		flags |= classification.IsEmail
	}
	result, err := ln.service.ClassifyText(r.Context(), model.Name(), req.Text, span.CodepointSpan{Begin: req.Begin, End: req.End}, flags)
	if err != nil {
		recordRequest("classify", model.Name(), writeServiceError(w, err), start)
		return
	}
	if result == nil {
		result = span.Classification{}
	}

	writeJSON(w, ClassifyResponse{Model: model.Name(), Classification: result})
	recordRequest("classify", model.Name(), http.StatusOK, start)
}

// handleApiAnnotate handles annotation requests for one or more texts
func (ln *SmartSelectNode) handleApiAnnotate(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	start := time.Now()

	release, ok := ln.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	var req AnnotateRequest
	if !ln.decodeRequest(w, r, &req) {
		return
	}
	model, err := ln.registry.Get(req.Model)
	if err != nil {
		recordRequest("annotate", req.Model, writeServiceError(w, err), start)
		return
	}

	texts := req.Texts
	if len(texts) == 0 {
		texts = []string{req.Text}
	}
	if ln.maxAnnotateTexts > 0 && len(texts) > ln.maxAnnotateTexts {
		http.Error(w, fmt.Sprintf("too many texts: %d > %d", len(texts), ln.maxAnnotateTexts), http.StatusRequestEntityTooLarge)
		recordRequest("annotate", model.Name(), http.StatusRequestEntityTooLarge, start)
		return
	}
	annotations, err := ln.service.AnnotateBatch(r.Context(), model.Name(), texts)
	if err != nil {
		recordRequest("annotate", model.Name(), writeServiceError(w, err), start)
		return
	}
	for i := range annotations {
		if annotations[i] == nil {
			annotations[i] = []span.AnnotatedSpan{}
		}
	}

	ln.logger.Debug("Annotate request completed",
		zap.String("model", model.Name()),
		zap.Int("texts", len(texts)),
		zap.Duration("duration", time.Since(start)))

	writeJSON(w, AnnotateResponse{Model: model.Name(), Annotations: annotations})
	recordRequest("annotate", model.Name(), http.StatusOK, start)
}

// handleApiModels lists the loaded models
func (ln *SmartSelectNode) handleApiModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ModelsResponse{Models: ln.registry.Info()})
}

// handleApiVersion returns version information
func (ln *SmartSelectNode) handleApiVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, VersionResponse{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	})
}
