package levels

import (
	"context"
	"encoding/json"
	"sort"

	"geozones/internal/geo"
)

// ParentAggregator：由已入库的子层级区划自下而上构建本层级
// 背景：子区划通过 parents 引用（"<level>:<code>"）声明归属；人口与面积逐项求和，
// 几何体汇集为 GeometryCollection（几何求并不在本系统范围内）
// 约束：必须在全部子层级装载/聚合完成后执行，编排器以逆拓扑序保证这一点
type ParentAggregator struct {
	geo.NopHandler
	Level       string
	ChildLevels []string
	Labels      map[string]string
	Steps       []Step
}

type accum struct {
	count   int
	pop     int64
	popSet  bool
	area    float64
	areaSet bool
	geoms   []json.RawMessage
}

func (a *ParentAggregator) Aggregate(ctx context.Context, env *geo.Env) (int, error) {
	cur, err := env.Zones.FindByLevel(ctx, a.ChildLevels)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	accs := make(map[string]*accum)
	for cur.Next() {
		z, err := cur.Zone()
		if err != nil {
			return 0, err
		}
		code := z.ParentIn(a.Level)
		if code == "" {
			continue
		}
		acc := accs[code]
		if acc == nil {
			acc = &accum{}
			accs[code] = acc
		}
		acc.count++
		if z.Population != nil {
			acc.pop += *z.Population
			acc.popSet = true
		}
		if z.Area != nil {
			acc.area += *z.Area
			acc.areaSet = true
		}
		if len(z.Geometry) > 0 {
			acc.geoms = append(acc.geoms, z.Geometry)
		}
	}
	if err := cur.Err(); err != nil {
		return 0, err
	}

	codes := make([]string, 0, len(accs))
	for code := range accs {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	written := 0
	for _, code := range codes {
		acc := accs[code]
		z := &geo.Zone{Level: a.Level, Code: code, Name: a.Labels[code]}
		if acc.popSet {
			pop := acc.pop
			z.Population = &pop
		}
		if acc.areaSet {
			area := acc.area
			z.Area = &area
		}
		if len(acc.geoms) > 0 {
			z.Geometry = collection(acc.geoms)
		}
		if err := env.Zones.Upsert(ctx, z); err != nil {
			return written, err
		}
		written++
		env.Log.Debug("aggregate_zone", "level", a.Level, "code", code, "children", acc.count)
	}
	return written, nil
}

func (a *ParentAggregator) Postprocess(ctx context.Context, env *geo.Env, only string) error {
	return runSteps(ctx, env, a.Level, a.Steps, only)
}

// collection：子几何体的 GeometryCollection 组装
func collection(geoms []json.RawMessage) json.RawMessage {
	doc := struct {
		Type       string            `json:"type"`
		Geometries []json.RawMessage `json:"geometries"`
	}{Type: "GeometryCollection", Geometries: geoms}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return raw
}
