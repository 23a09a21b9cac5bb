package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation used by tests and local
// development. It implements the same ordering and linking semantics as
// PostgresStore without a database.
type MemoryStore struct {
	mu      sync.Mutex
	records []*EventRecord
	nextID  int64
}

// NewMemory builds an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, rec *EventRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	cp := *rec
	cp.ID = m.nextID
	m.records = append(m.records, &cp)
	return cp.ID, nil
}

func (m *MemoryStore) FindOne(_ context.Context, q FindOneQuery) (*EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *EventRecord
	for _, rec := range m.records {
		if rec.EventType != q.EventType || rec.RoomID != q.RoomID || rec.Player != q.Player {
			continue
		}
		if q.Processed != nil && rec.Processed != *q.Processed {
			continue
		}
		if best == nil || rec.BlockNumber > best.BlockNumber {
			best = rec
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *MemoryStore) UpdateLink(_ context.Context, idA, idB int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var a, b *EventRecord
	for _, rec := range m.records {
		if rec.ID == idA {
			a = rec
		}
		if rec.ID == idB {
			b = rec
		}
	}
	if a == nil || b == nil {
		return nil
	}
	a.RelatedEventID, b.RelatedEventID = &idB, &idA
	a.Processed, b.Processed = true, true
	return nil
}

func (m *MemoryStore) Count(ctx context.Context, q Query) (int64, error) {
	all, err := m.Find(ctx, q, 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

func (m *MemoryStore) Find(_ context.Context, q Query, skip, limit int) ([]*EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*EventRecord
	for _, rec := range m.records {
		if q.EventType != nil && rec.EventType != *q.EventType {
			continue
		}
		if q.Player != "" && rec.Player != q.Player {
			continue
		}
		if q.RoomID != nil && rec.RoomID != *q.RoomID {
			continue
		}
		if q.BetID != "" && rec.BetID != q.BetID {
			continue
		}
		cp := *rec
		matched = append(matched, &cp)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].BlockNumber != matched[j].BlockNumber {
			return matched[i].BlockNumber > matched[j].BlockNumber
		}
		return matched[i].LogIndex > matched[j].LogIndex
	})

	if skip >= len(matched) {
		return nil, nil
	}
	matched = matched[skip:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryStore) FindByIDs(_ context.Context, ids []int64) ([]*EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []*EventRecord
	for _, rec := range m.records {
		if _, ok := want[rec.ID]; ok {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) MaxBlockNumber(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var max uint64
	for _, rec := range m.records {
		if rec.BlockNumber > max {
			max = rec.BlockNumber
		}
	}
	return max, nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
