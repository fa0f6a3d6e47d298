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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/classification"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/textclassifier"
	"go.uber.org/zap"
)

// ModelFileExt is the extension of model image files.
const ModelFileExt = ".tcm"

// ModelFileName is the image name looked up inside a model subdirectory.
const ModelFileName = "model" + ModelFileExt

// ErrModelNotFound is returned when a requested model is not registered.
var ErrModelNotFound = errors.New("model not found")

// Model is the inference surface served by the registry.
type Model interface {
	Name() string
	IsInitialized() bool
	ModelOptions() (options.ModelOptions, bool)
	SharingOptions() options.SharingModelOptions
	SuggestSelection(context string, click span.CodepointSpan) span.CodepointSpan
	ClassifyText(context string, s span.CodepointSpan, flags classification.InputFlags) span.Classification
	Annotate(context string) []span.AnnotatedSpan
	Close() error
}

var _ Model = (*textclassifier.Model)(nil)

// ModelInfo describes a registered model.
type ModelInfo struct {
	Name        string   `json:"name"`
	Language    string   `json:"language,omitempty"`
	Version     int32    `json:"version"`
	Collections []string `json:"collections"`
}

// RegistryConfig configures model discovery.
type RegistryConfig struct {
	ModelsDir         string
	ModelPath         string
	RegexMatchTimeout time.Duration
}

// ModelRegistry holds the loaded models by name.
type ModelRegistry struct {
	models map[string]Model
	cfg    RegistryConfig
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewModelRegistry creates a registry and loads every model it discovers.
// Directory structure: modelsDir/name.tcm or modelsDir/name/model.tcm
func NewModelRegistry(cfg RegistryConfig, logger *zap.Logger) (*ModelRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := &ModelRegistry{
		models: make(map[string]Model),
		cfg:    cfg,
		logger: logger,
	}

	paths, err := discoverModels(cfg.ModelsDir, logger)
	if err != nil {
		return nil, err
	}
	if cfg.ModelPath != "" {
		paths[modelNameFromPath(cfg.ModelPath)] = cfg.ModelPath
	}

	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		registry.load(name, paths[name])
	}

	logger.Info("Model registry initialized",
		zap.Int("models", len(registry.models)))
	return registry, nil
}

func discoverModels(modelsDir string, logger *zap.Logger) (map[string]string, error) {
	paths := make(map[string]string)
	if modelsDir == "" {
		return paths, nil
	}
	if _, err := os.Stat(modelsDir); os.IsNotExist(err) {
		logger.Warn("Models directory does not exist",
			zap.String("dir", modelsDir))
		return paths, nil
	}

	entries, err := os.ReadDir(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("reading models directory: %w", err)
	}
	for _, entry := range entries {
		path := filepath.Join(modelsDir, entry.Name())
		if entry.IsDir() {
			image := filepath.Join(path, ModelFileName)
			if _, err := os.Stat(image); err != nil {
				logger.Debug("Skipping directory without model image",
					zap.String("dir", entry.Name()))
				continue
			}
			paths[entry.Name()] = image
			continue
		}
		if filepath.Ext(entry.Name()) == ModelFileExt {
			paths[modelNameFromPath(path)] = path
		}
	}
	return paths, nil
}

func modelNameFromPath(path string) string {
	base := filepath.Base(path)
	if base == ModelFileName {
		return filepath.Base(filepath.Dir(path))
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (r *ModelRegistry) load(name, path string) {
	start := time.Now()
	model := textclassifier.NewFromPath(path, textclassifier.Config{
		Name:              name,
		RegexMatchTimeout: r.cfg.RegexMatchTimeout,
		OnRegexOverride:   RecordRegexOverride,
		Logger:            r.logger.Named(name),
	})
	if !model.IsInitialized() {
		r.logger.Warn("Skipping model that failed to load",
			zap.String("name", name),
			zap.String("path", path),
			zap.Error(model.LoadError()))
		_ = model.Close()
		return
	}
	RecordModelLoadDuration(name, time.Since(start).Seconds())
	r.logger.Info("Loaded model",
		zap.String("name", name),
		zap.String("path", path),
		zap.Duration("duration", time.Since(start)))
	r.Register(model)
}

// Register adds a model under its name, closing any model it replaces.
func (r *ModelRegistry) Register(model Model) {
	r.mu.Lock()
	old, ok := r.models[model.Name()]
	r.models[model.Name()] = model
	r.mu.Unlock()
	if ok && old != model {
		_ = old.Close()
	}
}

// Get returns a model by name. An empty name selects the only model when
// exactly one is registered.
func (r *ModelRegistry) Get(name string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		if len(r.models) == 1 {
			for _, m := range r.models {
				return m, nil
			}
		}
		return nil, fmt.Errorf("%w: model name required with %d models loaded", ErrModelNotFound, len(r.models))
	}
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return m, nil
}

// List returns the registered model names in sorted order
func (r *ModelRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Info describes every registered model in name order.
func (r *ModelRegistry) Info() []ModelInfo {
	names := r.List()
	infos := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		m, err := r.Get(name)
		if err != nil {
			continue
		}
		info := ModelInfo{
			Name:        name,
			Collections: m.SharingOptions().Collections,
		}
		if opts, ok := m.ModelOptions(); ok {
			info.Language = opts.Language
			info.Version = opts.Version
		}
		infos = append(infos, info)
	}
	return infos
}

// Len returns the number of registered models.
func (r *ModelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Close releases all models
func (r *ModelRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, m := range r.models {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing model %s: %w", name, err))
		}
	}
	r.models = make(map[string]Model)
	return errors.Join(errs...)
}
