package journal

import (
	"context"
	"sort"
	"sync"

	xerrors "AutoLP-Chain/internal/errors"
)

// DefaultMemoryCapacity 是内存日志保留的最大记录数。
const DefaultMemoryCapacity = 1024

// MemoryStore 以内存方式保存最近的操作记录。
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	records  []Record
}

// NewMemoryStore 创建 MemoryStore。capacity 不大于 0 时使用默认容量。
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Append 实现 Store 接口。超过容量时丢弃最旧的记录。
func (m *MemoryStore) Append(_ context.Context, record Record) error {
	if record.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "操作 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	if len(m.records) > m.capacity {
		m.records = append([]Record(nil), m.records[len(m.records)-m.capacity:]...)
	}
	return nil
}

// List 实现 Store 接口。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()
	results := make([]Record, 0, len(m.records))
	if opts.Order == SortByCreatedAsc {
		for _, record := range m.records {
			if opts.matches(record) {
				results = append(results, record)
			}
		}
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].CreatedAt < results[j].CreatedAt
		})
	} else {
		for i := len(m.records) - 1; i >= 0; i-- {
			if opts.matches(m.records[i]) {
				results = append(results, m.records[i])
			}
		}
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].CreatedAt > results[j].CreatedAt
		})
	}

	if opts.Offset >= len(results) {
		return []Record{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 实现 Store 接口。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()
	stats := Stats{ByKind: make(map[string]int)}
	for _, record := range m.records {
		if opts.matches(record) {
			stats.add(record)
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
