package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process fixed-window limiter.
// Windows that ended are dropped by a background sweep; call Close to stop it.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type window struct {
	start time.Time
	size  time.Duration
	count int
}

// NewMemory creates a Memory limiter sweeping expired windows every cleanup
// interval (default 5 minutes when zero).
func NewMemory(cleanup time.Duration) *Memory {
	if cleanup <= 0 {
		cleanup = 5 * time.Minute
	}
	m := &Memory{
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go m.sweep(cleanup)
	return m
}

// Consume implements Limiter.
func (m *Memory) Consume(_ context.Context, key string, limit int, size time.Duration) (Result, error) {
	now := m.now()
	start := WindowStart(now, size)
	reset := start.Add(size)

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !w.start.Equal(start) {
		m.windows[key] = &window{start: start, size: size, count: 1}
		return Result{Allowed: true, Remaining: max(limit-1, 0), ResetAt: reset}, nil
	}
	if w.count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: reset}, nil
	}
	w.count++
	return Result{Allowed: true, Remaining: limit - w.count, ResetAt: reset}, nil
}

func (m *Memory) sweep(every time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.prune()
		}
	}
}

func (m *Memory) prune() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, w := range m.windows {
		if !now.Before(w.start.Add(w.size)) {
			delete(m.windows, key)
		}
	}
}

// Close stops the background sweep.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
	return nil
}
