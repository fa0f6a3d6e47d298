/*
Copyright 2025 The Antfly Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


// Package client provides a Go SDK client for the smartselect API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/bytedance/sonic"
)

// SmartSelectClient is a client for interacting with the smartselect API.
type SmartSelectClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewSmartSelectClient creates a new client.
// The baseURL should be the server address (e.g., "http://localhost:11435").
// The /api prefix is automatically appended.
func NewSmartSelectClient(baseURL string, httpClient *http.Client) (*SmartSelectClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SmartSelectClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/") + "/api",
	}, nil
}

// BaseURL returns the API root the client sends requests to.
func (c *SmartSelectClient) BaseURL() string {
	return c.baseURL
}

// SuggestSelection returns the suggested selection around click. An empty
// model selects the server's only model.
func (c *SmartSelectClient) SuggestSelection(ctx context.Context, model, text string, click span.CodepointSpan) (span.CodepointSpan, error) {
	req := smartselect.SuggestRequest{Model: model, Text: text, Begin: click.Begin, End: click.End}
	var resp smartselect.SuggestResponse
	if err := c.do(ctx, http.MethodPost, "/suggest", req, &resp); err != nil {
		return click, err
	}
	return span.CodepointSpan{Begin: resp.Begin, End: resp.End}, nil
}

// ClassifyText ranks the collections for s, best first.
func (c *SmartSelectClient) ClassifyText(ctx context.Context, model, text string, s span.CodepointSpan, isURL, isEmail bool) (span.Classification, error) {
	req := smartselect.ClassifyRequest{
		Model:   model,
		Text:    text,
		Begin:   s.Begin,
		End:     s.End,
		IsURL:   isURL,
		IsEmail: isEmail,
	}
	var resp smartselect.ClassifyResponse
	if err := c.do(ctx, http.MethodPost, "/classify", req, &resp); err != nil {
		return nil, err
	}
	return resp.Classification, nil
}

// Annotate annotates a single text.
func (c *SmartSelectClient) Annotate(ctx context.Context, model, text string) ([]span.AnnotatedSpan, error) {
	annotations, err := c.AnnotateBatch(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	return annotations[0], nil
}

// AnnotateBatch annotates texts; result i belongs to texts[i].
func (c *SmartSelectClient) AnnotateBatch(ctx context.Context, model string, texts []string) ([][]span.AnnotatedSpan, error) {
	if len(texts) == 0 {
		return [][]span.AnnotatedSpan{}, nil
	}
	req := smartselect.AnnotateRequest{Model: model, Texts: texts}
	var resp smartselect.AnnotateResponse
	if err := c.do(ctx, http.MethodPost, "/annotate", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Annotations) != len(texts) {
		return nil, fmt.Errorf("server returned %d annotation lists for %d texts", len(resp.Annotations), len(texts))
	}
	return resp.Annotations, nil
}

// ListModels returns the models loaded by the server.
func (c *SmartSelectClient) ListModels(ctx context.Context) (*smartselect.ModelsResponse, error) {
	var resp smartselect.ModelsResponse
	if err := c.do(ctx, http.MethodGet, "/models", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetVersion returns server version information.
func (c *SmartSelectClient) GetVersion(ctx context.Context) (*smartselect.VersionResponse, error) {
	var resp smartselect.VersionResponse
	if err := c.do(ctx, http.MethodGet, "/version", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *SmartSelectClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, data)
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// StatusError is returned for non-200 responses. The server writes either
// {"error": "..."} or plain text; Message holds the text in both cases.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", strings.ToLower(http.StatusText(e.StatusCode)), e.Message)
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var e struct {
		Error string `json:"error"`
	}
	if sonic.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	return &StatusError{StatusCode: status, Message: msg}
}
