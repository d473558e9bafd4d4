package geo

import (
	"fmt"
	"sort"
	"strings"
)

// Registry：已注册层级的有向无环图
// 背景：取代“模块加载时向全局图自注册”的方式，在进程启动处显式构建并传入编排器
// 约束：构建时即校验悬空父引用与环；遍历顺序对同批次节点保持注册顺序，保证跨运行确定性
type Registry struct {
	levels []*Level
	byID   map[string]*Level
	order  []*Level
}

// NewRegistry：构建并校验层级图
// 异常：父层级未注册、id 重复或存在环时返回配置错误（启动期失败，不进入任何阶段）
func NewRegistry(levels ...*Level) (*Registry, error) {
	r := &Registry{
		levels: levels,
		byID:   make(map[string]*Level, len(levels)),
	}
	for _, l := range levels {
		if l.ID == "" {
			return nil, &OpError{Op: "geo.registry", Kind: KindConfig,
				Err: fmt.Errorf("level with empty id")}
		}
		if _, dup := r.byID[l.ID]; dup {
			return nil, &OpError{Op: "geo.registry", Kind: KindConfig,
				Err: fmt.Errorf("duplicate level id %q", l.ID)}
		}
		r.byID[l.ID] = l
	}
	for _, l := range levels {
		for _, p := range l.Parents {
			if _, ok := r.byID[p]; !ok {
				return nil, &OpError{Op: "geo.registry", Kind: KindConfig,
					Err: fmt.Errorf("level %q references unregistered parent %q", l.ID, p)}
			}
		}
	}
	order, err := topoOrder(levels)
	if err != nil {
		return nil, err
	}
	r.order = order
	return r, nil
}

// topoOrder：Kahn 拓扑排序，按注册顺序稳定输出
// 约束：任何层级不得先于其父层级出现；剩余节点无法推进即存在环
func topoOrder(levels []*Level) ([]*Level, error) {
	emitted := make(map[string]bool, len(levels))
	order := make([]*Level, 0, len(levels))
	remaining := len(levels)
	for remaining > 0 {
		progressed := false
		for _, l := range levels {
			if emitted[l.ID] {
				continue
			}
			ready := true
			for _, p := range l.Parents {
				if !emitted[p] {
					ready = false
					break
				}
			}
			if ready {
				emitted[l.ID] = true
				order = append(order, l)
				remaining--
				progressed = true
			}
		}
		if !progressed {
			var stuck []string
			for _, l := range levels {
				if !emitted[l.ID] {
					stuck = append(stuck, l.ID)
				}
			}
			sort.Strings(stuck)
			return nil, &OpError{Op: "geo.registry", Kind: KindConfig,
				Err: fmt.Errorf("cycle in level graph involving %s", strings.Join(stuck, ", "))}
		}
	}
	return order, nil
}

// Traverse：全部层级的正向拓扑序（父先于子）
func (r *Registry) Traverse() []*Level {
	out := make([]*Level, len(r.order))
	copy(out, r.order)
	return out
}

// Get：按 id 取层级
func (r *Registry) Get(id string) (*Level, bool) {
	l, ok := r.byID[id]
	return l, ok
}

// IDs：全部层级 id（拓扑序），用于错误提示
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.order))
	for _, l := range r.order {
		ids = append(ids, l.ID)
	}
	return ids
}

// Select：按显式 id 集合过滤 Traverse 结果
// 背景：所有子命令共用同一份选择逻辑，保证 -l 过滤行为一致
// 约束：ids 为空表示全选；保持拓扑序并去重；出现未注册 id 视为用户输入错误，在任何阶段开始前返回
func (r *Registry) Select(ids ...string) ([]*Level, error) {
	if len(ids) == 0 {
		return r.Traverse(), nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.byID[id]; !ok {
			return nil, &OpError{Op: "geo.select", Kind: KindUsage,
				Err: fmt.Errorf("unknown level %q (known: %s)", id, strings.Join(r.IDs(), ", "))}
		}
		want[id] = true
	}
	var out []*Level
	for _, l := range r.order {
		if want[l.ID] {
			out = append(out, l)
			delete(want, l.ID)
		}
	}
	return out, nil
}

// ReverseLevels：聚合阶段使用的逆拓扑序（叶先于根）
func ReverseLevels(levels []*Level) []*Level {
	out := make([]*Level, len(levels))
	for i, l := range levels {
		out[len(levels)-1-i] = l
	}
	return out
}
