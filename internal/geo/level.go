// 包 geo：行政层级图与区划记录的核心模型，不依赖任何存储或网络实现
package geo

import (
	"context"
	"log/slog"
)

// Level：层级图中的一个节点（如 country、country/region）
// 背景：每个层级声明其父层级与数据源 URL；具体的装载/聚合/后处理逻辑由 Handler 提供
// 约束：注册后不再修改；父层级以 id 引用，由 Registry 统一解析校验
type Level struct {
	ID      string
	Label   string
	Parents []string
	URLs    []string
	Handler Handler
}

// Env：Handler 执行环境，持有区划存储、下载目录与日志器
type Env struct {
	Zones     ZoneStore
	Downloads string
	Log       *slog.Logger
}

// Handler：层级的三段能力接口
// 背景：编排器只依赖该接口，各层级按数据源自带实现；返回值为本次写入的区划数
// 约束：Load 读取下载目录并写入存储；Aggregate 只读子层级数据、写本层级；
// Postprocess 为可选增补步骤，only 非空时只执行同名步骤
type Handler interface {
	Load(ctx context.Context, env *Env) (int, error)
	Aggregate(ctx context.Context, env *Env) (int, error)
	Postprocess(ctx context.Context, env *Env, only string) error
}

// NopHandler：空实现，供只参与部分阶段的层级内嵌
type NopHandler struct{}

func (NopHandler) Load(ctx context.Context, env *Env) (int, error)      { return 0, nil }
func (NopHandler) Aggregate(ctx context.Context, env *Env) (int, error) { return 0, nil }
func (NopHandler) Postprocess(ctx context.Context, env *Env, only string) error {
	return nil
}

// handler：返回层级的 Handler，未配置时回退为空实现
func (l *Level) handler() Handler {
	if l.Handler == nil {
		return NopHandler{}
	}
	return l.Handler
}

// Load / Aggregate / Postprocess：转发到 Handler，屏蔽 nil 判断
func (l *Level) Load(ctx context.Context, env *Env) (int, error) {
	return l.handler().Load(ctx, env)
}

func (l *Level) Aggregate(ctx context.Context, env *Env) (int, error) {
	return l.handler().Aggregate(ctx, env)
}

func (l *Level) Postprocess(ctx context.Context, env *Env, only string) error {
	return l.handler().Postprocess(ctx, env, only)
}
