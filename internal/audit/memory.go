package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps run records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*RunRecord
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Store(_ context.Context, rec *RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *MemoryStore) List(_ context.Context, q Query) ([]*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*RunRecord, 0, min(q.limit(), len(m.records)))
	for i := len(m.records) - 1; i >= 0 && len(out) < q.limit(); i-- {
		r := m.records[i]
		if q.RuleID != "" && r.RuleID != q.RuleID {
			continue
		}
		if !q.Since.IsZero() && r.RecordedAt.Before(q.Since) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
