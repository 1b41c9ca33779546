// Package ratelimit throttles per-user message sends with fixed windows,
// either in process memory or shared through Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// Memory is an in-process fixed-window limiter. A non-positive limit disables it.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemory allows limit calls per key in every window.
func NewMemory(limit int, size time.Duration) *Memory {
	if size <= 0 {
		size = time.Minute
	}
	return &Memory{
		limit:   limit,
		window:  size,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow reports whether key may proceed and records the attempt.
func (m *Memory) Allow(_ context.Context, key string) bool {
	if m == nil || m.limit <= 0 {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= m.window {
		w = &window{start: now}
		m.windows[key] = w
	}
	w.count++
	return w.count <= m.limit
}

// StartSweep drops expired windows every interval until stop is closed.
func (m *Memory) StartSweep(stop <-chan struct{}) {
	if m == nil || m.limit <= 0 {
		return
	}
	ticker := time.NewTicker(m.window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-stop:
				return
			}
		}
	}()
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for key, w := range m.windows {
		if now.Sub(w.start) >= m.window {
			delete(m.windows, key)
		}
	}
}
