// 包 pipeline：阶段编排器，按拓扑序驱动各层级的下载/装载/聚合/后处理/导出
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"geozones/internal/config"
	"geozones/internal/dist"
	"geozones/internal/download"
	"geozones/internal/geo"
	"geozones/internal/logger"
	"geozones/internal/metrics"
)

// Pipeline：一次命令调用的运行态
// 背景：Levels 为本次选择（已按拓扑序去重）；各阶段严格串行，上一阶段对整个选择
// 完成之前下一阶段不会开始；任一层级失败即中止整个阶段，不跳过继续
type Pipeline struct {
	Levels  []*geo.Level
	Zones   geo.ZoneStore
	Fetcher *download.Fetcher
	Cache   *redis.Client
	Cfg     *config.Config
}

func New(sel []*geo.Level, zones geo.ZoneStore, fetcher *download.Fetcher, cache *redis.Client, cfg *config.Config) *Pipeline {
	return &Pipeline{Levels: sel, Zones: zones, Fetcher: fetcher, Cache: cache, Cfg: cfg}
}

// stageTimer：阶段耗时打点
func stageTimer(name string) func() {
	start := time.Now()
	return func() {
		metrics.StageDurationSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

func (p *Pipeline) env(log *slog.Logger) *geo.Env {
	return &geo.Env{Zones: p.Zones, Downloads: p.Cfg.DownloadPath(), Log: log}
}

// wrapStage：给阶段错误补上层级定位；已带定位的错误原样上抛
func wrapStage(op, level string, err error) error {
	if err == nil {
		return nil
	}
	var oe *geo.OpError
	if errors.As(err, &oe) && oe.Level != "" {
		return err
	}
	return &geo.OpError{Op: op, Kind: geo.KindOf(err), Level: level, Err: err}
}

// Download：拉取选中层级所需的全部源文件
// 约束：跨层级共享的 URL 只拉取一次；不同 URL 之间并行、无顺序依赖
func (p *Pipeline) Download(ctx context.Context) error {
	defer stageTimer("download")()
	log := logger.Stage("download")
	urls := download.URLSet(p.Levels)
	log.Info("download_stage_begin", "urls", len(urls))
	if err := p.Fetcher.FetchAll(ctx, urls); err != nil {
		log.Error("download_stage_error", "err", err)
		return err
	}
	log.Info("download_stage_done", "urls", len(urls))
	return nil
}

// Load：正向拓扑序装载各层级
// 背景：存储对 (level, code) 的唯一索引保证重复装载幂等；drop 为显式破坏性前置，
// 清空整个集合并重建索引后才开始装载
func (p *Pipeline) Load(ctx context.Context, drop bool) (int, error) {
	defer stageTimer("load")()
	log := logger.Stage("load")
	if drop {
		if err := p.Zones.Drop(ctx); err != nil {
			return 0, err
		}
	}
	// 索引必须先于任何写入就绪
	if err := p.Zones.EnsureIndexes(ctx); err != nil {
		return 0, err
	}
	total := 0
	env := p.env(log)
	for _, l := range p.Levels {
		log.Info("level_load_begin", "level", l.ID)
		n, err := l.Load(ctx, env)
		total += n
		if err != nil {
			log.Error("level_load_error", "level", l.ID, "err", err)
			return total, wrapStage("pipeline.load", l.ID, err)
		}
		metrics.ZonesLoadedTotal.WithLabelValues(l.ID).Add(float64(n))
		log.Info("level_load_done", "level", l.ID, "zones", n)
	}
	log.Info("load_stage_done", "zones", total)
	return total, nil
}

// Aggregate：逆拓扑序执行聚合
// 约束：父层级的聚合依赖全部子层级数据已就绪，逆序（叶到根）是本阶段的核心不变量
func (p *Pipeline) Aggregate(ctx context.Context) (int, error) {
	defer stageTimer("aggregate")()
	log := logger.Stage("aggregate")
	total := 0
	env := p.env(log)
	for _, l := range geo.ReverseLevels(p.Levels) {
		n, err := l.Aggregate(ctx, env)
		total += n
		if err != nil {
			log.Error("level_aggregate_error", "level", l.ID, "err", err)
			return total, wrapStage("pipeline.aggregate", l.ID, err)
		}
		if n > 0 {
			metrics.ZonesAggregatedTotal.WithLabelValues(l.ID).Add(float64(n))
			log.Info("level_aggregate_done", "level", l.ID, "zones", n)
		}
	}
	log.Info("aggregate_stage_done", "zones", total)
	return total, nil
}

// Postprocess：正向顺序执行补充步骤；only 非空时只执行同名步骤
func (p *Pipeline) Postprocess(ctx context.Context, only string) error {
	defer stageTimer("postprocess")()
	log := logger.Stage("postprocess")
	env := p.env(log)
	for _, l := range p.Levels {
		if err := l.Postprocess(ctx, env, only); err != nil {
			log.Error("level_postprocess_error", "level", l.ID, "err", err)
			return wrapStage("pipeline.postprocess", l.ID, err)
		}
	}
	log.Info("postprocess_stage_done")
	return nil
}

// Dist：导出阶段，转发到 dist 包
func (p *Pipeline) Dist(ctx context.Context, opts dist.Options) ([]string, error) {
	defer stageTimer("dist")()
	return dist.Export(ctx, p.Zones, p.Levels, opts)
}

// Full：download → load → aggregate → postprocess → dist 的顺序组合
// 约束：任一阶段失败立即中止后续阶段，各阶段的正确性假设依赖前序阶段全局完成
func (p *Pipeline) Full(ctx context.Context, drop bool, opts dist.Options) error {
	if err := p.Download(ctx); err != nil {
		return err
	}
	if _, err := p.Load(ctx, drop); err != nil {
		return err
	}
	if _, err := p.Aggregate(ctx); err != nil {
		return err
	}
	if err := p.Postprocess(ctx, ""); err != nil {
		return err
	}
	_, err := p.Dist(ctx, opts)
	return err
}
