package store

import (
	"database/sql"
	"encoding/json"

	"geozones/internal/geo"

	"github.com/lib/pq"
)

// rowCursor：包装 sql.Rows 的单遍区划游标
type rowCursor struct {
	rows *sql.Rows
}

func (c *rowCursor) Next() bool { return c.rows.Next() }

func (c *rowCursor) Zone() (*geo.Zone, error) {
	var (
		z    geo.Zone
		pop  sql.NullInt64
		area sql.NullFloat64
		wiki sql.NullString
		geom []byte
	)
	err := c.rows.Scan(&z.Level, &z.Code, &z.Name,
		pq.Array(&z.Keys), pq.Array(&z.Parents),
		&pop, &area, &wiki, &geom)
	if err != nil {
		return nil, storeErr("store.scan", err)
	}
	if pop.Valid {
		z.Population = &pop.Int64
	}
	if area.Valid {
		z.Area = &area.Float64
	}
	if wiki.Valid {
		z.Wikipedia = wiki.String
	}
	if len(geom) > 0 {
		z.Geometry = json.RawMessage(geom)
	}
	return &z, nil
}

func (c *rowCursor) Err() error   { return storeErr("store.cursor", c.rows.Err()) }
func (c *rowCursor) Close() error { return c.rows.Close() }
