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

// Package textclassifier loads a smart selection and sharing model image and
// serves selection, classification, and annotation over it.
//
// Constructors never fail outright: a model that cannot be loaded is returned
// uninitialized, answers every call with its degraded result, and reports the
// cause through LoadError.
package textclassifier

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/chunking"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/classification"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/features"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/modelimage"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/network"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/options"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/selection"
	"github.com/Ourobor-OS/external-libtextclassifier/pkg/smartselect/lib/span"
	"go.uber.org/zap"
)

// Input flags for ClassifyText.
const (
	IsURL   = classification.IsURL
	IsEmail = classification.IsEmail
)

// ErrNotInitialized is returned by LoadError for a model closed after a
// successful load.
var ErrNotInitialized = errors.New("model not initialized")

// Config holds configuration for loading a model.
type Config struct {
	// Name identifies the model in logs (default: the image source)
	Name string

	// RegexMatchTimeout bounds each override pattern evaluation (0 = default)
	RegexMatchTimeout time.Duration

	// OnRegexOverride is called with the collection a regex match forced.
	OnRegexOverride func(collection string)

	// Logger for logging (nil = no logging)
	Logger *zap.Logger
}

// Model is a loaded smart selection and sharing model. It is safe for
// concurrent use; Close waits for in-flight calls.
type Model struct {
	mu     sync.RWMutex
	name   string
	logger *zap.Logger

	image        *modelimage.Image
	modelOptions *options.ModelOptions
	selectionOpt options.SelectionModelOptions
	sharingOpt   options.SharingModelOptions

	selection *selection.Engine
	sharing   *classification.Engine
	chunker   chunking.Chunker

	initialized bool
	loadErr     error
}

// NewFromFile loads the model stored at [offset, offset+size) of f. The file
// may be closed once the constructor returns.
func NewFromFile(f *os.File, offset, size int64, cfg Config) *Model {
	if cfg.Name == "" && f != nil {
		cfg.Name = fmt.Sprintf("%s@%d", f.Name(), offset)
	}
	img, err := modelimage.FromFile(f, offset, size)
	return newModel(img, err, cfg)
}

// NewFromFD loads the model occupying all of f.
func NewFromFD(f *os.File, cfg Config) *Model {
	if cfg.Name == "" && f != nil {
		cfg.Name = f.Name()
	}
	img, err := modelimage.FromFD(f)
	return newModel(img, err, cfg)
}

// NewFromPath loads the model file at path.
func NewFromPath(path string, cfg Config) *Model {
	if cfg.Name == "" {
		cfg.Name = path
	}
	img, err := modelimage.FromPath(path)
	return newModel(img, err, cfg)
}

// NewFromBytes loads a model from memory. data is borrowed and must not be
// modified while the model is in use.
func NewFromBytes(data []byte, cfg Config) *Model {
	if cfg.Name == "" {
		cfg.Name = "memory"
	}
	img, err := modelimage.FromBytes(data)
	return newModel(img, err, cfg)
}

// ReadSelectionModelOptions reads only the model options of the image in f.
func ReadSelectionModelOptions(f *os.File) (*options.ModelOptions, error) {
	return modelimage.ReadSelectionModelOptions(f)
}

func newModel(img *modelimage.Image, err error, cfg Config) *Model {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Model{name: cfg.Name, logger: logger.With(zap.String("model", cfg.Name))}

	start := time.Now()
	if err == nil {
		err = m.load(img, cfg)
	}
	if err != nil {
		if img != nil {
			_ = img.Close()
		}
		m.loadErr = err
		m.logger.Error("Failed to load model", zap.Error(err))
		return m
	}

	m.image = img
	m.initialized = true
	m.logger.Info("Loaded model",
		zap.Int("bytes", img.Size()),
		zap.Bool("mapped", img.Mapped()),
		zap.Strings("collections", m.sharingOpt.Collections),
		zap.Int("regexPatterns", len(m.sharingOpt.RegexPatterns)),
		zap.Duration("took", time.Since(start)))
	return m
}

func (m *Model) load(img *modelimage.Image, cfg Config) error {
	if b, ok := img.Region(modelimage.RegionModelOptions); ok {
		opts, err := options.ParseModelOptions(b)
		if err != nil {
			return fmt.Errorf("parsing model options: %w", err)
		}
		m.modelOptions = opts
	}

	b, _ := img.Region(modelimage.RegionSelectionOptions)
	selOpts, err := options.ParseSelectionModelOptions(b)
	if err != nil {
		return fmt.Errorf("parsing selection options: %w", err)
	}
	b, _ = img.Region(modelimage.RegionSelectionNetwork)
	selNet, err := network.Parse(b)
	if err != nil {
		return fmt.Errorf("parsing selection network: %w", err)
	}
	if err := selNet.Validate(selOpts.Features.NumBuckets, selOpts.Features.NumSlots(), selOpts.Features.NumSelectionLabels()); err != nil {
		return fmt.Errorf("selection network: %w", err)
	}

	b, _ = img.Region(modelimage.RegionSharingOptions)
	shareOpts, err := options.ParseSharingModelOptions(b)
	if err != nil {
		return fmt.Errorf("parsing sharing options: %w", err)
	}
	b, _ = img.Region(modelimage.RegionSharingNetwork)
	shareNet, err := network.Parse(b)
	if err != nil {
		return fmt.Errorf("parsing sharing network: %w", err)
	}
	if err := shareNet.Validate(shareOpts.Features.NumBuckets, shareOpts.Features.NumSlots(), len(shareOpts.Collections)); err != nil {
		return fmt.Errorf("sharing network: %w", err)
	}

	m.selectionOpt = *selOpts
	m.sharingOpt = *shareOpts

	selProcessor := features.NewProcessor(selOpts.Features)
	m.selection = selection.NewEngine(*selOpts, selProcessor, selNet, m.logger)
	m.sharing = classification.NewEngine(classification.Config{
		Collections:     shareOpts.Collections,
		Regexes:         classification.CompileRegexTable(shareOpts.RegexPatterns, cfg.RegexMatchTimeout, m.logger),
		OnRegexOverride: cfg.OnRegexOverride,
		Logger:          m.logger,
	}, features.NewProcessor(shareOpts.Features), shareNet)
	m.chunker = chunking.NewTokenChunker(selProcessor, m.logger)
	return nil
}

// Name returns the model name used in logs.
func (m *Model) Name() string {
	return m.name
}

// IsInitialized reports whether the model loaded and has not been closed.
func (m *Model) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// LoadError returns why the model is not initialized, or nil.
func (m *Model) LoadError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.initialized {
		return nil
	}
	if m.loadErr == nil {
		return ErrNotInitialized
	}
	return m.loadErr
}

// ModelOptions returns the optional model description stored in the image.
func (m *Model) ModelOptions() (options.ModelOptions, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.modelOptions == nil {
		return options.ModelOptions{}, false
	}
	return *m.modelOptions, true
}

// SelectionOptions returns the parsed selection options.
func (m *Model) SelectionOptions() options.SelectionModelOptions {
	return m.selectionOpt
}

// SharingOptions returns the parsed sharing options.
func (m *Model) SharingOptions() options.SharingModelOptions {
	return m.sharingOpt
}

// SelectionProcessor returns the selection feature processor, or nil for an
// uninitialized model. Evaluation tooling uses it to reproduce tokenization.
func (m *Model) SelectionProcessor() *features.Processor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return nil
	}
	return m.selection.Processor()
}

// SuggestSelection returns the suggested selection around click. The result
// contains click. An uninitialized model, or a click that cannot be placed in
// context, returns click unchanged.
func (m *Model) SuggestSelection(context string, click span.CodepointSpan) span.CodepointSpan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized || click.IsInvalid() {
		return click
	}
	clamped, ok := click.Clamp(utf8.RuneCountInString(context))
	if !ok {
		return click
	}
	return m.selection.SuggestSymmetrical(context, clamped)
}

// ClassifyText ranks the collections for s. It returns an empty result for an
// uninitialized model or a span outside context.
func (m *Model) ClassifyText(context string, s span.CodepointSpan, flags classification.InputFlags) span.Classification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return nil
	}
	return m.sharing.Classify(context, s, flags)
}

// Close releases the model image. Calls made after Close behave as on an
// uninitialized model.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	if m.image == nil {
		return nil
	}
	err := m.image.Close()
	m.image = nil
	return err
}
