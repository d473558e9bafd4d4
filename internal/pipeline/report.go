package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"geozones/internal/download"
	"geozones/internal/logger"
)

// PropCount：某属性在一组区划内的覆盖计数
type PropCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
	Total int64  `json:"total"`
}

// LevelCoverage：单个层级的区划数与属性覆盖
type LevelCoverage struct {
	ID    string      `json:"id"`
	Count int64       `json:"count"`
	Props []PropCount `json:"props"`
}

// Coverage：覆盖率报表；纯读操作，无副作用
type Coverage struct {
	Levels []LevelCoverage `json:"levels"`
	Total  int64           `json:"total"`
	Props  []PropCount     `json:"props"`
}

// Coverage：逐层级统计区划数与追踪属性的覆盖情况
// 背景：Redis 可用时短期缓存报表，避免大集合上反复聚合；缓存失效或出错一律回源
func (p *Pipeline) Coverage(ctx context.Context) (*Coverage, error) {
	log := logger.Stage("status")
	ids := make([]string, 0, len(p.Levels))
	for _, l := range p.Levels {
		ids = append(ids, l.ID)
	}
	cacheKey := "geozones:coverage:" + strings.Join(ids, ",")

	if p.Cache != nil {
		if raw, err := p.Cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var cov Coverage
			if json.Unmarshal(raw, &cov) == nil {
				log.Debug("coverage_cache_hit", "key", cacheKey)
				return &cov, nil
			}
		}
	}

	byLevel, err := p.Zones.CountByLevel(ctx, ids)
	if err != nil {
		return nil, err
	}
	props := p.Cfg.Properties
	byProp := make(map[string]map[string]int64, len(props))
	for _, prop := range props {
		counts, err := p.Zones.CountByProperty(ctx, ids, prop)
		if err != nil {
			return nil, err
		}
		byProp[prop] = counts
	}

	cov := &Coverage{}
	propTotals := make(map[string]int64, len(props))
	for _, id := range ids {
		lc := LevelCoverage{ID: id, Count: byLevel[id]}
		for _, prop := range props {
			n := byProp[prop][id]
			propTotals[prop] += n
			lc.Props = append(lc.Props, PropCount{Name: prop, Count: n, Total: lc.Count})
		}
		cov.Total += lc.Count
		cov.Levels = append(cov.Levels, lc)
	}
	for _, prop := range props {
		cov.Props = append(cov.Props, PropCount{Name: prop, Count: propTotals[prop], Total: cov.Total})
	}

	if p.Cache != nil {
		if raw, err := json.Marshal(cov); err == nil {
			if err := p.Cache.Set(ctx, cacheKey, raw, p.Cfg.CoverageTTL.Std()).Err(); err != nil {
				log.Debug("coverage_cache_set_error", "err", err)
			}
		}
	}
	return cov, nil
}

// DownloadStatus：单个源文件的暂存区存在性
type DownloadStatus struct {
	URL     string
	File    string
	Present bool
}

// LevelInfo：status 报表的层级条目
type LevelInfo struct {
	ID    string
	Label string
}

// Status：status 命令的完整报表
type Status struct {
	Home      string
	Levels    []LevelInfo
	Downloads []DownloadStatus
	Coverage  *Coverage
}

// Status：汇总设置、层级、下载与覆盖率；只读
func (p *Pipeline) Status(ctx context.Context) (*Status, error) {
	st := &Status{Home: p.Cfg.Home}
	for _, l := range p.Levels {
		st.Levels = append(st.Levels, LevelInfo{ID: l.ID, Label: l.Label})
	}
	for _, u := range download.URLSet(p.Levels) {
		st.Downloads = append(st.Downloads, DownloadStatus{
			URL:     u,
			File:    download.Filename(u),
			Present: download.Present(p.Cfg.DownloadPath(), u),
		})
	}
	cov, err := p.Coverage(ctx)
	if err != nil {
		return nil, err
	}
	st.Coverage = cov
	return st, nil
}
