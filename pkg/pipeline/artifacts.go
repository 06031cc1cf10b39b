// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrArtifactNotFound is returned when replacing an artifact the pipeline did not produce.
var ErrArtifactNotFound = errors.New("artifact not found")

type (
	// Artifacts is the named output of a build.
	Artifacts interface {
		// Names returns the artifact names in a stable order.
		Names() []string
		// Get returns an artifact's content.
		Get(name string) ([]byte, bool)
		// Replace swaps an existing artifact's content.
		Replace(name string, content []byte) error
	}

	// MemoryArtifacts is an in-memory Artifacts mapping.
	MemoryArtifacts struct {
		mu    sync.RWMutex
		files map[string][]byte
	}
)

// NewMemoryArtifacts creates a mapping holding copies of files.
func NewMemoryArtifacts(files map[string][]byte) *MemoryArtifacts {
	m := &MemoryArtifacts{files: make(map[string][]byte, len(files))}
	for name, content := range files {
		m.files[name] = slices.Clone(content)
	}
	return m
}

// Names returns the artifact names in lexical order.
func (m *MemoryArtifacts) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.files))
}

// Get returns a copy of the named artifact.
func (m *MemoryArtifacts) Get(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(content), true
}

// Replace swaps the content of an existing artifact.
func (m *MemoryArtifacts) Replace(name string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	}
	m.files[name] = slices.Clone(content)
	return nil
}
