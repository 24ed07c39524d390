// Package storetest provides an in-memory fake of store.Store for unit
// tests, so pipeline components are tested against the interface rather
// than a live Redis instance.
package storetest

import (
	"context"
	"sync"
)

type Mem struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	scalar map[string]string
	pubsub []Published
}

type Published struct {
	Channel string
	Message string
}

func New() *Mem {
	return &Mem{
		hashes: make(map[string]map[string]string),
		scalar: make(map[string]string),
	}
}

func (m *Mem) HSetNX(_ context.Context, key, field, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	if _, exists := h[field]; exists {
		return false, nil
	}
	h[field] = value
	return true, nil
}

func (m *Mem) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *Mem) HDel(_ context.Context, key, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.hashes[key]; ok {
		delete(h, field)
	}
	return nil
}

func (m *Mem) HGet(_ context.Context, key, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (m *Mem) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *Mem) HKeys(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.hashes[key] {
		out = append(out, k)
	}
	return out, nil
}

func (m *Mem) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.scalar[key]
	return v, ok, nil
}

func (m *Mem) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scalar[key] = value
	return nil
}

func (m *Mem) Publish(_ context.Context, channel, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pubsub = append(m.pubsub, Published{Channel: channel, Message: message})
	return nil
}

// Published returns every message published so far, for test assertions.
func (m *Mem) Published() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.pubsub))
	copy(out, m.pubsub)
	return out
}
