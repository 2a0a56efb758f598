package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a process-local Store. Entries do not survive a restart.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]*Entry{}}
}

func (m *Memory) Add(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := e
	cp.Fields = copyFields(e.Fields)
	m.entries[e.ID] = &cp
	return nil
}

func (m *Memory) Claim(_ context.Context, now, leaseUntil time.Time, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*Entry
	for _, e := range m.entries {
		if e.DeliveredAt == nil && !e.Parked && !e.NextAttemptAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]Entry, 0, len(due))
	for _, e := range due {
		e.NextAttemptAt = leaseUntil
		cp := *e
		cp.Fields = copyFields(e.Fields)
		out = append(out, cp)
	}
	return out, nil
}

func (m *Memory) MarkDelivered(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	// Delivered entries are dropped; only pending and parked ones are kept.
	delete(m.entries, id)
	return nil
}

func (m *Memory) MarkFailed(_ context.Context, id string, attempts int, next time.Time, lastErr string, parked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Attempts = attempts
	e.NextAttemptAt = next
	e.LastError = lastErr
	e.Parked = parked
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	cp := *e
	cp.Fields = copyFields(e.Fields)
	return cp, nil
}

func (m *Memory) Pending(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.DeliveredAt == nil && !e.Parked {
			n++
		}
	}
	return n, nil
}

func copyFields(f map[string]string) map[string]string {
	out := make(map[string]string, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
