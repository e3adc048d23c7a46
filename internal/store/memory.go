package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	seq       uint64
	expiresAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// MemoryStore 进程内实现，过期文档在读取时惰性删除
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]map[string]memoryItem
	seq   uint64
	clock func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]map[string]memoryItem),
		clock: time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, collection, id string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	coll, ok := m.data[collection]
	if !ok {
		coll = make(map[string]memoryItem)
		m.data[collection] = coll
	}

	item := memoryItem{value: append([]byte(nil), value...)}
	// 覆盖写保留原始创建顺序
	if old, ok := coll[id]; ok && !old.expired(now) {
		item.seq = old.seq
	} else {
		m.seq++
		item.seq = m.seq
	}
	if ttl > 0 {
		item.expiresAt = now.Add(ttl)
	}
	coll[id] = item
	return nil
}

func (m *MemoryStore) Get(_ context.Context, collection, id string) ([]byte, error) {
	m.mu.RLock()
	item, ok := m.data[collection][id]
	m.mu.RUnlock()

	if !ok || item.expired(m.clock()) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), item.value...), nil
}

func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	delete(m.data[collection], id)
	if item.expired(m.clock()) {
		return ErrNotFound
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, collection string, limit int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	coll := m.data[collection]
	items := make([]memoryItem, 0, len(coll))
	for id, item := range coll {
		if item.expired(now) {
			delete(coll, id)
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].seq > items[j].seq })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	out := make([][]byte, 0, len(items))
	for _, item := range items {
		out = append(out, append([]byte(nil), item.value...))
	}
	return out, nil
}
