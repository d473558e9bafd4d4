// 包 store: 区划集合的 PostgreSQL 数据访问层，实现核心所需的最小持久化契约
package store

import (
	"context"
	"database/sql"
	"fmt"

	"geozones/internal/geo"
	"geozones/internal/logger"
	"geozones/internal/migrate"

	"github.com/lib/pq"
)

// Store: 数据库访问入口，持有连接池并实现 geo.ZoneStore
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Open: 使用 DSN 打开数据库连接并配置连接池参数
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	return &Store{db: db}, nil
}

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// storeErr：统一包装存储错误，分类为 store（不自动重试，立即中止阶段）
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &geo.OpError{Op: op, Kind: geo.KindStore, Err: err}
}

// EnsureIndexes: 幂等创建表与 (level,code)/(keys)/(parents) 索引
func (s *Store) EnsureIndexes(ctx context.Context) error {
	return storeErr("store.indexes", migrate.EnsureSchema(s.db))
}

// Upsert: 以 (level, code) 为键插入或整体替换
// 背景：装载与聚合阶段重复执行时依赖该语义保持幂等
func (s *Store) Upsert(ctx context.Context, z *geo.Zone) error {
	var geom interface{}
	if len(z.Geometry) > 0 {
		geom = []byte(z.Geometry)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO geozones(level, code, name, keys, parents, population, area, wikipedia, geometry)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (level, code) DO UPDATE SET
            name=EXCLUDED.name, keys=EXCLUDED.keys, parents=EXCLUDED.parents,
            population=EXCLUDED.population, area=EXCLUDED.area,
            wikipedia=EXCLUDED.wikipedia, geometry=EXCLUDED.geometry,
            updated_at=now()`,
		z.Level, z.Code, z.Name,
		pq.Array(z.Keys), pq.Array(z.Parents),
		z.Population, z.Area, nullStr(z.Wikipedia), geom,
	)
	return storeErr("store.upsert", err)
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// FindByLevel: 返回指定层级集合的惰性游标
// 约束：单遍、有限；调用方负责 Close；重新查询需重新调用
func (s *Store) FindByLevel(ctx context.Context, levelIDs []string) (geo.Cursor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT level, code, name, keys, parents, population, area, wikipedia, geometry
        FROM geozones WHERE level = ANY($1) ORDER BY level, code`, pq.Array(levelIDs))
	if err != nil {
		return nil, storeErr("store.find", err)
	}
	return &rowCursor{rows: rows}, nil
}

// CountByLevel: 按层级分组的区划计数
func (s *Store) CountByLevel(ctx context.Context, levelIDs []string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT level, COUNT(1) FROM geozones
        WHERE level = ANY($1) GROUP BY level`, pq.Array(levelIDs))
	if err != nil {
		return nil, storeErr("store.count", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var level string
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			return nil, storeErr("store.count", err)
		}
		out[level] = n
	}
	return out, storeErr("store.count", rows.Err())
}

// 可统计属性到谓词片段的白名单映射
// 约束：属性名来自配置，不允许直接拼接进 SQL
var propPredicates = map[string]string{
	"population": "population IS NOT NULL",
	"area":       "area IS NOT NULL",
	"wikipedia":  "wikipedia IS NOT NULL AND wikipedia <> ''",
	"geometry":   "geometry IS NOT NULL",
	"name":       "name <> ''",
}

// CountByProperty: 按层级分组、具备指定属性的区划计数，用于覆盖率报表
func (s *Store) CountByProperty(ctx context.Context, levelIDs []string, prop string) (map[string]int64, error) {
	pred, ok := propPredicates[prop]
	if !ok {
		return nil, &geo.OpError{Op: "store.coverage", Kind: geo.KindUsage,
			Err: fmt.Errorf("untracked property %q", prop)}
	}
	rows, err := s.db.QueryContext(ctx, `SELECT level, COUNT(1) FROM geozones
        WHERE level = ANY($1) AND `+pred+` GROUP BY level`, pq.Array(levelIDs))
	if err != nil {
		return nil, storeErr("store.coverage", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var level string
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			return nil, storeErr("store.coverage", err)
		}
		out[level] = n
	}
	return out, storeErr("store.coverage", rows.Err())
}

// Drop: 删除整个集合；仅在 load --drop 显式要求时调用
func (s *Store) Drop(ctx context.Context) error {
	logger.L().Info("store_drop")
	return storeErr("store.drop", migrate.DropData(s.db))
}
