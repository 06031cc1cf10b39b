// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"fmt"
	"sync"
)

type (
	// Entry is one resolved entry point of the build.
	Entry struct {
		// Name is the entry's logical name (e.g. "main").
		Name string
		// Path is the entry file path, absolute or relative to the build root.
		Path string
	}

	// ModuleRequest is an import the bundler is about to resolve.
	ModuleRequest struct {
		// Request is the import specifier exactly as written (e.g. "react-dom/client").
		Request string
		// Importer is the file containing the import, when known.
		Importer string
	}

	// Decision is a subscriber's answer to a ModuleRequest.
	// The zero value means "no opinion": default bundling applies.
	Decision struct {
		// External excludes the module from the bundle.
		External bool
		// Global is the runtime global symbol the module is bound to.
		Global string
	}

	// EntryHandler runs once the pipeline has resolved its entries.
	// root is the directory entry paths are relative to.
	EntryHandler func(ctx context.Context, root string, entries []Entry) error

	// ModuleRequestHandler decides whether a module request becomes an external.
	ModuleRequestHandler func(ctx context.Context, req ModuleRequest) (Decision, error)

	// AssetsHandler runs after optimization, before artifacts are written.
	AssetsHandler func(ctx context.Context, artifacts Artifacts) error

	// Hooks are the subscription points a pipeline exposes.
	Hooks interface {
		OnEntryResolved(h EntryHandler)
		OnModuleRequest(h ModuleRequestHandler)
		OnOptimizeAssetsComplete(h AssetsHandler)
	}

	// Hub is a Hooks implementation hosts use to dispatch lifecycle events.
	// Subscriptions and emissions are safe for concurrent use.
	Hub struct {
		mu       sync.RWMutex
		entries  []EntryHandler
		requests []ModuleRequestHandler
		assets   []AssetsHandler
	}
)

// NoOpinion is the Decision that leaves a module request to the bundler.
var NoOpinion = Decision{}

// IsZero reports whether the decision expresses no opinion.
func (d Decision) IsZero() bool { return d == NoOpinion }

// OnEntryResolved subscribes h to the entry phase.
func (h *Hub) OnEntryResolved(fn EntryHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, fn)
}

// OnModuleRequest subscribes fn to module-request interception.
func (h *Hub) OnModuleRequest(fn ModuleRequestHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, fn)
}

// OnOptimizeAssetsComplete subscribes fn to asset finalization.
func (h *Hub) OnOptimizeAssetsComplete(fn AssetsHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.assets = append(h.assets, fn)
}

// EmitEntryResolved calls every entry handler in subscription order and
// stops at the first error.
func (h *Hub) EmitEntryResolved(ctx context.Context, root string, entries []Entry) error {
	h.mu.RLock()
	handlers := h.entries
	h.mu.RUnlock()

	for _, fn := range handlers {
		if err := fn(ctx, root, entries); err != nil {
			return fmt.Errorf("entry phase: %w", err)
		}
	}
	return nil
}

// EmitModuleRequest asks subscribers in order; the first decision that is not
// NoOpinion wins.
func (h *Hub) EmitModuleRequest(ctx context.Context, req ModuleRequest) (Decision, error) {
	h.mu.RLock()
	handlers := h.requests
	h.mu.RUnlock()

	for _, fn := range handlers {
		d, err := fn(ctx, req)
		if err != nil {
			return NoOpinion, fmt.Errorf("module request %q: %w", req.Request, err)
		}
		if !d.IsZero() {
			return d, nil
		}
	}
	return NoOpinion, nil
}

// EmitOptimizeAssetsComplete calls every assets handler in subscription order
// and stops at the first error.
func (h *Hub) EmitOptimizeAssetsComplete(ctx context.Context, artifacts Artifacts) error {
	h.mu.RLock()
	handlers := h.assets
	h.mu.RUnlock()

	for _, fn := range handlers {
		if err := fn(ctx, artifacts); err != nil {
			return fmt.Errorf("assets phase: %w", err)
		}
	}
	return nil
}
