package cli

import (
	"github.com/redis/go-redis/v9"

	"geozones/internal/config"
	"geozones/internal/download"
	"geozones/internal/geo"
	"geozones/internal/levels"
	"geozones/internal/pipeline"
	"geozones/internal/store"
	"geozones/internal/utils"
)

// app：一次命令执行所需的全部依赖
// 背景：download 不触碰数据库，Postgres 连接只在需要存储的命令里建立
type app struct {
	Cfg   *config.Config
	Sel   []*geo.Level
	Store *store.Store
	Cache *redis.Client
	Pipe  *pipeline.Pipeline
}

func buildApp(o rootOptions, needStore bool) (*app, error) {
	cfg, err := config.Load(o.Home)
	if err != nil {
		return nil, err
	}
	reg, err := levels.Builtin()
	if err != nil {
		return nil, err
	}
	sel, err := reg.Select(o.Levels...)
	if err != nil {
		return nil, err
	}

	a := &app{Cfg: cfg, Sel: sel}
	if needStore {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			return nil, &geo.OpError{Op: "store.open", Kind: geo.KindStore, Err: err}
		}
		a.Store = store.AttachDB(db)
		a.Cache = utils.OpenRedisFromEnv()
	}

	fetcher := download.NewFetcher(cfg.DownloadPath(),
		cfg.Downloads.Workers, cfg.Downloads.Retries,
		cfg.Downloads.Backoff.Std(), cfg.Downloads.Timeout.Std())

	var zones geo.ZoneStore
	if a.Store != nil {
		zones = a.Store
	}
	a.Pipe = pipeline.New(sel, zones, fetcher, a.Cache, cfg)
	return a, nil
}

func (a *app) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
}
