// 包 geotest：ZoneStore 的内存实现，供各包测试复用
package geotest

import (
	"context"
	"sort"
	"sync"

	"geozones/internal/geo"
)

// MemStore：map 实现的区划存储
// 约束：仅用于测试；遍历顺序按 (level, code) 排序以保证断言稳定
type MemStore struct {
	mu      sync.Mutex
	zones   map[string]*geo.Zone
	indexed bool

	// 故障注入：非 nil 时对应操作直接返回该错误
	UpsertErr error
	FindErr   error
}

func NewMemStore() *MemStore {
	return &MemStore{zones: make(map[string]*geo.Zone)}
}

func (s *MemStore) EnsureIndexes(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexed = true
	return nil
}

// Indexed：是否已调用过 EnsureIndexes
func (s *MemStore) Indexed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexed
}

func (s *MemStore) Upsert(ctx context.Context, z *geo.Zone) error {
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *z
	s.zones[z.ID()] = &cp
	return nil
}

// Get：按 (level, code) 读取单条记录
func (s *MemStore) Get(level, code string) (*geo.Zone, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[geo.ZoneID(level, code)]
	if !ok {
		return nil, false
	}
	cp := *z
	return &cp, true
}

// Len：记录总数
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.zones)
}

func (s *MemStore) snapshot(levelIDs []string) []*geo.Zone {
	want := make(map[string]bool, len(levelIDs))
	for _, id := range levelIDs {
		want[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*geo.Zone
	for _, z := range s.zones {
		if len(levelIDs) == 0 || want[z.Level] {
			cp := *z
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func (s *MemStore) FindByLevel(ctx context.Context, levelIDs []string) (geo.Cursor, error) {
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	return &sliceCursor{zones: s.snapshot(levelIDs), pos: -1}, nil
}

func (s *MemStore) CountByLevel(ctx context.Context, levelIDs []string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, z := range s.snapshot(levelIDs) {
		out[z.Level]++
	}
	return out, nil
}

func (s *MemStore) CountByProperty(ctx context.Context, levelIDs []string, prop string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, z := range s.snapshot(levelIDs) {
		if z.HasProperty(prop) {
			out[z.Level]++
		}
	}
	return out, nil
}

func (s *MemStore) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones = make(map[string]*geo.Zone)
	s.indexed = false
	return nil
}

type sliceCursor struct {
	zones []*geo.Zone
	pos   int
}

func (c *sliceCursor) Next() bool {
	c.pos++
	return c.pos < len(c.zones)
}

func (c *sliceCursor) Zone() (*geo.Zone, error) { return c.zones[c.pos], nil }
func (c *sliceCursor) Err() error               { return nil }
func (c *sliceCursor) Close() error             { return nil }
