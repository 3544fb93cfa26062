package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"fieldnotes.ai/internal/observation"
)

var (
	_ observation.Gateway       = (*Memory)(nil)
	_ observation.ExpiryUpdater = (*Memory)(nil)
	_ observation.Loader        = (*Memory)(nil)
)

// Memory is a process-local gateway used with -disable_db and in tests.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*memRow
	keys   map[string]int64
}

type memRow struct {
	rec    observation.Record
	active bool
}

func NewMemory() *Memory {
	return &Memory{nextID: 1, rows: map[int64]*memRow{}, keys: map[string]int64{}}
}

func (m *Memory) StoreNew(ctx context.Context, rec observation.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[rec.Key]; ok {
		return id, nil
	}
	id := m.nextID
	m.nextID++
	rec.ID = id
	m.rows[id] = &memRow{rec: rec, active: true}
	if rec.Key != "" {
		m.keys[rec.Key] = id
	}
	return id, nil
}

func (m *Memory) DeactivateOne(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.rows[id]; r != nil {
		r.active = false
	}
	return nil
}

func (m *Memory) DeactivateMany(ctx context.Context, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if r := m.rows[id]; r != nil && r.active {
			r.active = false
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpdateExpiration(ctx context.Context, id int64, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.rows[id]; r != nil {
		if expiresAt == nil {
			r.rec.ExpiresAt = nil
		} else {
			t := *expiresAt
			r.rec.ExpiresAt = &t
		}
	}
	return nil
}

func (m *Memory) LoadActive(ctx context.Context) ([]observation.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]observation.Record, 0, len(m.rows))
	for _, r := range m.rows {
		if r.active {
			out = append(out, r.rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Close() error { return nil }
