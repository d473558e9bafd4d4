package migrate

import (
	"database/sql"

	"geozones/internal/logger"
)

// 背景：首次运行自动创建区划表与索引，保障装载/聚合/导出所依赖的查询路径
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；索引创建必须先于任何写入完成
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS geozones (
            level TEXT NOT NULL,
            code TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            keys TEXT[] NOT NULL DEFAULT '{}',
            parents TEXT[] NOT NULL DEFAULT '{}',
            population BIGINT,
            area DOUBLE PRECISION,
            wikipedia TEXT,
            geometry JSONB,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_zone_level_code ON geozones(level, code)`,
		`CREATE INDEX IF NOT EXISTS idx_zone_level ON geozones(level)`,
		`CREATE INDEX IF NOT EXISTS idx_zone_keys ON geozones USING GIN (keys)`,
		`CREATE INDEX IF NOT EXISTS idx_zone_parents ON geozones USING GIN (parents)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}

// DropData：删除整个区划表（仅在运维显式要求时调用）
// 约束：调用方随后必须重新执行 EnsureSchema 重建表与全部索引
func DropData(db *sql.DB) error {
	logger.L().Info("collection_drop")
	_, err := db.Exec(`DROP TABLE IF EXISTS geozones`)
	return err
}
