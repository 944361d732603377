// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package generate turns prompts and reference media into images, videos and
// descriptions by calling external AI services. The lifecycle controller is
// the only caller; it hands each generator an immutable Request and writes the
// Result back onto the placeholder node.
package generate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/StoryloomAI/storyloom/services/editor/graph"
)

var (
	// ErrNoGenerator means no backend is registered for the requested kind.
	ErrNoGenerator = errors.New("generate: no generator registered for kind")

	// ErrMissingPrompt means the request resolved to an empty prompt.
	ErrMissingPrompt = errors.New("generate: request has no prompt")

	// ErrMissingImage means the request needs a source image and has none.
	ErrMissingImage = errors.New("generate: request has no source image")
)

// Generator defines the standard interface for any generation backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
// Tests use this instead of a mock framework.
type GeneratorFunc func(ctx context.Context, req Request) (Result, error)

// Generate implements the Generator interface.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Registry maps node kinds to the generator that serves them.
// Safe for concurrent use; registration normally happens once at startup.
type Registry struct {
	mu         sync.RWMutex
	generators map[graph.NodeKind]Generator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[graph.NodeKind]Generator)}
}

// Register binds a generator to a kind, replacing any previous binding.
func (r *Registry) Register(kind graph.NodeKind, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[kind] = g
}

// Lookup returns the generator for a kind, or ErrNoGenerator.
func (r *Registry) Lookup(kind graph.NodeKind) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGenerator, kind)
	}
	return g, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []graph.NodeKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]graph.NodeKind, 0, len(r.generators))
	for k := range r.generators {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
