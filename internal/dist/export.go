// 包 dist：把区划存储投影为可分发文件（json/msgpack、分层级拆分、可选 tar.xz 打包）
package dist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"geozones/internal/geo"
	"geozones/internal/logger"
	"geozones/internal/metrics"
)

// Options：一次导出的全部开关
// 约束：Pretty 仅对 json 编码生效；Keys 非空时只导出指定属性（level/code 恒定保留）
type Options struct {
	Dir          string
	Translations string
	Pretty       bool
	Split        bool
	Compress     bool
	Format       string
	Keys         []string
}

const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Export：按选项导出选中层级，返回产出文件名（相对 Dir，含归档）
// 背景：记录自游标读出即序列化写盘，全程不持有完整结果集
func Export(ctx context.Context, zones geo.ZoneStore, sel []*geo.Level, opts Options) ([]string, error) {
	if opts.Format != FormatJSON && opts.Format != FormatMsgpack {
		return nil, &geo.OpError{Op: "dist.export", Kind: geo.KindUsage,
			Err: fmt.Errorf("unknown format %q", opts.Format)}
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, &geo.OpError{Op: "dist.export", Kind: geo.KindInternal, Err: err}
	}
	log := logger.Stage("dist")

	var files []string
	if opts.Split {
		for _, l := range sel {
			name := fmt.Sprintf("zones-%s.%s", strings.ReplaceAll(l.ID, "/", "-"), opts.Format)
			n, err := writeZones(ctx, zones, []string{l.ID}, filepath.Join(opts.Dir, name), opts)
			if err != nil {
				return files, err
			}
			log.Info("dist_file", "file", name, "zones", n)
			files = append(files, name)
		}
	} else {
		ids := make([]string, 0, len(sel))
		for _, l := range sel {
			ids = append(ids, l.ID)
		}
		name := "zones." + opts.Format
		n, err := writeZones(ctx, zones, ids, filepath.Join(opts.Dir, name), opts)
		if err != nil {
			return files, err
		}
		log.Info("dist_file", "file", name, "zones", n)
		files = append(files, name)
	}

	manifest := "levels." + opts.Format
	if err := writeManifest(sel, filepath.Join(opts.Dir, manifest), opts); err != nil {
		return files, err
	}
	log.Info("dist_file", "file", manifest)
	files = append(files, manifest)
	metrics.ExportedFilesTotal.Add(float64(len(files)))

	if opts.Compress {
		archives, err := bundle(files, opts)
		if err != nil {
			return files, err
		}
		files = append(files, archives...)
		metrics.ExportedFilesTotal.Add(float64(len(archives)))
	}
	return files, nil
}

// writeZones：单个输出文件的流式写入
func writeZones(ctx context.Context, zones geo.ZoneStore, levelIDs []string, path string, opts Options) (int, error) {
	cur, err := zones.FindByLevel(ctx, levelIDs)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, &geo.OpError{Op: "dist.write", Kind: geo.KindInternal, Err: err}
	}
	defer f.Close()

	enc := newEncoder(f, opts)
	count := 0
	for cur.Next() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		z, err := cur.Zone()
		if err != nil {
			return count, err
		}
		if err := enc.Encode(zoneDoc(z, opts)); err != nil {
			return count, &geo.OpError{Op: "dist.write", Kind: geo.KindInternal, Err: err}
		}
		count++
	}
	if err := cur.Err(); err != nil {
		return count, err
	}
	if err := enc.Close(); err != nil {
		return count, &geo.OpError{Op: "dist.write", Kind: geo.KindInternal, Err: err}
	}
	return count, f.Close()
}

// writeManifest：层级清单（id、label、父层级 id）
func writeManifest(sel []*geo.Level, path string, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return &geo.OpError{Op: "dist.manifest", Kind: geo.KindInternal, Err: err}
	}
	defer f.Close()
	enc := newEncoder(f, opts)
	for _, l := range sel {
		parents := l.Parents
		if parents == nil {
			parents = []string{}
		}
		doc := map[string]any{"id": l.ID, "label": l.Label, "parents": parents}
		if err := enc.Encode(doc); err != nil {
			return &geo.OpError{Op: "dist.manifest", Kind: geo.KindInternal, Err: err}
		}
	}
	if err := enc.Close(); err != nil {
		return &geo.OpError{Op: "dist.manifest", Kind: geo.KindInternal, Err: err}
	}
	return f.Close()
}

// zoneDoc：区划记录到导出文档的投影
// 约束：msgpack 下几何体需还原为结构化值，避免把原始 JSON 当字符串编码
func zoneDoc(z *geo.Zone, opts Options) map[string]any {
	doc := map[string]any{
		"_id":   z.ID(),
		"level": z.Level,
		"code":  z.Code,
	}
	attrs := map[string]any{}
	if z.Name != "" {
		attrs["name"] = z.Name
	}
	if len(z.Keys) > 0 {
		attrs["keys"] = z.Keys
	}
	if len(z.Parents) > 0 {
		attrs["parents"] = z.Parents
	}
	if z.Population != nil {
		attrs["population"] = *z.Population
	}
	if z.Area != nil {
		attrs["area"] = *z.Area
	}
	if z.Wikipedia != "" {
		attrs["wikipedia"] = z.Wikipedia
	}
	if len(z.Geometry) > 0 {
		if opts.Format == FormatMsgpack {
			var g any
			if err := json.Unmarshal(z.Geometry, &g); err == nil {
				attrs["geometry"] = g
			}
		} else {
			attrs["geometry"] = z.Geometry
		}
	}
	if len(opts.Keys) > 0 {
		keep := make(map[string]bool, len(opts.Keys))
		for _, k := range opts.Keys {
			keep[k] = true
		}
		for k := range attrs {
			if !keep[k] {
				delete(attrs, k)
			}
		}
	}
	for k, v := range attrs {
		doc[k] = v
	}
	return doc
}
