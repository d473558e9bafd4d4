package levels

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"geozones/internal/geo"
)

// Step：具名后处理步骤；postprocess --only <name> 时只执行同名步骤
type Step struct {
	Name string
	Run  func(ctx context.Context, env *geo.Env) error
}

// runSteps：顺序执行层级的后处理步骤
// 约束：only 非空且本层级无同名步骤时静默跳过（与部分重跑的使用方式一致）
func runSteps(ctx context.Context, env *geo.Env, level string, steps []Step, only string) error {
	for _, s := range steps {
		if only != "" && s.Name != only {
			continue
		}
		env.Log.Info("postprocess_step", "level", level, "step", s.Name)
		if err := s.Run(ctx, env); err != nil {
			return &geo.OpError{Op: "levels.postprocess", Kind: geo.KindOf(err), Level: level,
				Err: fmt.Errorf("step %s: %w", s.Name, err)}
		}
	}
	return nil
}

// wikipediaStep：为尚无 wikipedia 引用的区划补一个按名称推导的条目链接
func wikipediaStep(level string) Step {
	return Step{Name: "wikipedia", Run: func(ctx context.Context, env *geo.Env) error {
		cur, err := env.Zones.FindByLevel(ctx, []string{level})
		if err != nil {
			return err
		}
		defer cur.Close()
		var updates []*geo.Zone
		for cur.Next() {
			z, err := cur.Zone()
			if err != nil {
				return err
			}
			if z.Wikipedia != "" || z.Name == "" {
				continue
			}
			z.Wikipedia = "en:" + url.PathEscape(strings.ReplaceAll(z.Name, " ", "_"))
			updates = append(updates, z)
		}
		if err := cur.Err(); err != nil {
			return err
		}
		for _, z := range updates {
			if err := env.Zones.Upsert(ctx, z); err != nil {
				return err
			}
		}
		env.Log.Info("postprocess_wikipedia", "level", level, "updated", len(updates))
		return nil
	}}
}
