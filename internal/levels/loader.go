// 包 levels：内置行政层级定义与各阶段的具体实现（数据装载、向上聚合、后处理）
package levels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"geozones/internal/geo"
)

// Feature：GeoJSON 要素；几何体不做解析，按原始 JSON 透传入库
type Feature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// DatasetLoader：从暂存区 GeoJSON 数据集装载一个层级
// 背景：按要素流式解析，不把整个 FeatureCollection 读进内存；Map 将要素属性映射为区划记录，
// 返回 nil 表示跳过该要素（如无编码的占位要素）
type DatasetLoader struct {
	geo.NopHandler
	File  string
	Level string
	Map   func(props map[string]any, geom json.RawMessage) *geo.Zone
	Steps []Step
}

func (d *DatasetLoader) Load(ctx context.Context, env *geo.Env) (int, error) {
	path := filepath.Join(env.Downloads, d.File)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, &geo.OpError{Op: "levels.load", Kind: geo.KindUsage, Level: d.Level,
				Err: fmt.Errorf("dataset %s not staged, run download first", d.File)}
		}
		return 0, &geo.OpError{Op: "levels.load", Kind: geo.KindInternal, Level: d.Level, Err: err}
	}
	defer f.Close()

	count := 0
	err = streamFeatures(f, func(ft *Feature) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		z := d.Map(ft.Properties, ft.Geometry)
		if z == nil {
			return nil
		}
		z.Level = d.Level
		if err := env.Zones.Upsert(ctx, z); err != nil {
			return err
		}
		count++
		if count%1000 == 0 {
			env.Log.Info("load_progress", "level", d.Level, "count", count)
		}
		return nil
	})
	if err != nil {
		var oe *geo.OpError
		if errors.As(err, &oe) {
			return count, err
		}
		return count, &geo.OpError{Op: "levels.load", Kind: geo.KindInternal, Level: d.Level,
			Err: fmt.Errorf("%s: %w", d.File, err)}
	}
	return count, nil
}

func (d *DatasetLoader) Postprocess(ctx context.Context, env *geo.Env, only string) error {
	return runSteps(ctx, env, d.Level, d.Steps, only)
}

// streamFeatures：流式遍历 FeatureCollection 的 features 数组
// 约束：也接受顶层即为要素数组的文件；其余结构视为数据集格式错误
func streamFeatures(r io.Reader, fn func(*Feature) error) error {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		if t == '[' {
			return decodeArray(dec, fn)
		}
		if t != '{' {
			return fmt.Errorf("unexpected token %v", t)
		}
	default:
		return fmt.Errorf("unexpected token %v", tok)
	}
	// 对象形式：定位 features 键，跳过其余键值
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		if key == "features" {
			open, err := dec.Token()
			if err != nil {
				return err
			}
			if d, ok := open.(json.Delim); !ok || d != '[' {
				return fmt.Errorf("features is not an array")
			}
			return decodeArray(dec, fn)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return err
		}
	}
	return fmt.Errorf("no features array found")
}

func decodeArray(dec *json.Decoder, fn func(*Feature) error) error {
	for dec.More() {
		var ft Feature
		if err := dec.Decode(&ft); err != nil {
			return err
		}
		if err := fn(&ft); err != nil {
			return err
		}
	}
	return nil
}

// propString / propInt64：属性提取辅助，按候选键顺序取首个可用值
func propString(props map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := props[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func propInt64(props map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		switch v := props[k].(type) {
		case float64:
			return int64(v), true
		case int64:
			return v, true
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
