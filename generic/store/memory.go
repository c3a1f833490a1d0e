// Package store provides CredentialStore implementations.
package store

import (
	"context"
	"sync"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps one secret in process memory. It does not survive restarts.
type Memory struct {
	mu    sync.RWMutex
	value string
	set   bool
}

func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryWith returns a store already holding value.
func NewMemoryWith(value string) *Memory {
	return &Memory{value: value, set: true}
}

func (m *Memory) Get(_ context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value, m.set, nil
}

func (m *Memory) Set(_ context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = value
	m.set = true
	return nil
}

func (m *Memory) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = ""
	m.set = false
	return nil
}
