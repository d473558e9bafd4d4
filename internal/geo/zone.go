package geo

import (
	"context"
	"encoding/json"
	"strings"
)

// Zone：单个行政区划记录，(level, code) 全局唯一
// 背景：keys 为备用标识（如 insee/iso 编码），parents 为祖先区划的 zone id，
// 聚合阶段通过 parents 归集子区划；可选属性缺失时保持 nil/空
type Zone struct {
	Level      string          `json:"level" msgpack:"level"`
	Code       string          `json:"code" msgpack:"code"`
	Name       string          `json:"name,omitempty" msgpack:"name,omitempty"`
	Keys       []string        `json:"keys,omitempty" msgpack:"keys,omitempty"`
	Parents    []string        `json:"parents,omitempty" msgpack:"parents,omitempty"`
	Population *int64          `json:"population,omitempty" msgpack:"population,omitempty"`
	Area       *float64        `json:"area,omitempty" msgpack:"area,omitempty"`
	Wikipedia  string          `json:"wikipedia,omitempty" msgpack:"wikipedia,omitempty"`
	Geometry   json.RawMessage `json:"geometry,omitempty" msgpack:"geometry,omitempty"`
}

// ZoneID：规范 zone 标识，形如 "country:fr"
func ZoneID(level, code string) string { return level + ":" + code }

// ID：当前记录的规范标识
func (z *Zone) ID() string { return ZoneID(z.Level, z.Code) }

// SplitZoneID：拆解 zone 标识；非法输入返回 ok=false
func SplitZoneID(id string) (level, code string, ok bool) {
	i := strings.LastIndex(id, ":")
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

// ParentIn：返回记录在指定层级下的父 zone code；无则返回空串
func (z *Zone) ParentIn(level string) string {
	prefix := level + ":"
	for _, p := range z.Parents {
		if strings.HasPrefix(p, prefix) {
			return p[len(prefix):]
		}
	}
	return ""
}

// HasProperty：判断可选属性是否存在，用于覆盖率统计
// 约束：属性名须在 TrackedProperties 能表达的集合内；未知属性视为缺失
func (z *Zone) HasProperty(name string) bool {
	switch name {
	case "population":
		return z.Population != nil
	case "area":
		return z.Area != nil
	case "wikipedia":
		return z.Wikipedia != ""
	case "geometry":
		return len(z.Geometry) > 0
	case "name":
		return z.Name != ""
	}
	return false
}

// TrackedProperties：覆盖率统计默认追踪的属性
var TrackedProperties = []string{"population", "area", "wikipedia"}

// Cursor：存储查询结果的单遍游标
// 约束：有限、不可重置；重新查询需重新发起调用；使用完毕必须 Close
type Cursor interface {
	Next() bool
	Zone() (*Zone, error)
	Err() error
	Close() error
}

// ZoneStore：核心依赖的最小持久化契约
// 背景：底层为按 (level, code) 作键的文档collection；除单条 upsert 原子性外不假设事务
// 约束：EnsureIndexes 必须先于任何写入完成；FindByLevel 返回惰性游标
type ZoneStore interface {
	EnsureIndexes(ctx context.Context) error
	Upsert(ctx context.Context, z *Zone) error
	FindByLevel(ctx context.Context, levelIDs []string) (Cursor, error)
	CountByLevel(ctx context.Context, levelIDs []string) (map[string]int64, error)
	CountByProperty(ctx context.Context, levelIDs []string, prop string) (map[string]int64, error)
	Drop(ctx context.Context) error
}
