package levels

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"geozones/internal/geo"
)

// 内置数据源：国家与一级行政区的 GeoJSON 数据集，外加世界银行人口时间序列
const (
	countriesURL  = "https://raw.githubusercontent.com/datasets/geo-countries/main/data/countries.geojson"
	admin1URL     = "https://raw.githubusercontent.com/datasets/geo-admin1-us-eu/main/data/admin1.geojson"
	populationURL = "https://raw.githubusercontent.com/datasets/population/main/data/population.csv"
)

// groupLabels：国家集团层级的已知成员组
var groupLabels = map[string]string{
	"ue":    "European Union",
	"world": "World",
}

// euMembers：欧盟成员国 alpha-2 编码
var euMembers = map[string]bool{
	"at": true, "be": true, "bg": true, "cy": true, "cz": true, "de": true,
	"dk": true, "ee": true, "es": true, "fi": true, "fr": true, "gr": true,
	"hr": true, "hu": true, "ie": true, "it": true, "lt": true, "lu": true,
	"lv": true, "mt": true, "nl": true, "pl": true, "pt": true, "ro": true,
	"se": true, "si": true, "sk": true,
}

// Builtin：构建内置层级图
// 背景：country-group 无数据源、纯聚合；country 与 country/region 从数据集装载；
// 各层级在启动处一次性注册，之后不再变更
func Builtin() (*geo.Registry, error) {
	countryGroup := &geo.Level{
		ID:    "country-group",
		Label: "Country groups",
		Handler: &ParentAggregator{
			Level:       "country-group",
			ChildLevels: []string{"country"},
			Labels:      groupLabels,
		},
	}
	country := &geo.Level{
		ID:      "country",
		Label:   "Countries",
		Parents: []string{"country-group"},
		URLs:    []string{countriesURL, populationURL},
		Handler: &DatasetLoader{
			File:  "countries.geojson",
			Level: "country",
			Map:   mapCountry,
			Steps: []Step{
				populationStep("country"),
				wikipediaStep("country"),
			},
		},
	}
	region := &geo.Level{
		ID:      "country/region",
		Label:   "Regions",
		Parents: []string{"country"},
		URLs:    []string{admin1URL},
		Handler: &DatasetLoader{
			File:  "admin1.geojson",
			Level: "country/region",
			Map:   mapRegion,
			Steps: []Step{wikipediaStep("country/region")},
		},
	}
	return geo.NewRegistry(countryGroup, country, region)
}

// mapCountry：国家要素到区划记录的映射
// 约束：code 为小写 alpha-2；无编码的要素（争议地区占位）跳过
func mapCountry(props map[string]any, geom json.RawMessage) *geo.Zone {
	alpha2 := strings.ToLower(propString(props, "ISO3166-1-Alpha-2", "ISO_A2", "iso_a2"))
	if alpha2 == "" || alpha2 == "-99" {
		return nil
	}
	alpha3 := strings.ToLower(propString(props, "ISO3166-1-Alpha-3", "ISO_A3", "iso_a3"))
	z := &geo.Zone{
		Code:     alpha2,
		Name:     propString(props, "name", "NAME", "ADMIN"),
		Keys:     []string{"iso2:" + alpha2},
		Parents:  []string{geo.ZoneID("country-group", "world")},
		Geometry: geom,
	}
	if alpha3 != "" {
		z.Keys = append(z.Keys, "iso3:"+alpha3)
	}
	if euMembers[alpha2] {
		z.Parents = append(z.Parents, geo.ZoneID("country-group", "ue"))
	}
	if pop, ok := propInt64(props, "POP_EST", "population"); ok && pop > 0 {
		z.Population = &pop
	}
	return z
}

// mapRegion：一级行政区要素到区划记录的映射
func mapRegion(props map[string]any, geom json.RawMessage) *geo.Zone {
	iso := strings.ToLower(propString(props, "iso_3166_2", "ISO_3166_2"))
	if iso == "" || !strings.Contains(iso, "-") {
		return nil
	}
	countryCode := iso[:strings.Index(iso, "-")]
	z := &geo.Zone{
		Code:     iso,
		Name:     propString(props, "name", "NAME", "name_en"),
		Keys:     []string{"iso:" + iso},
		Parents:  []string{geo.ZoneID("country", countryCode)},
		Geometry: geom,
	}
	if pop, ok := propInt64(props, "POP_EST", "population"); ok && pop > 0 {
		z.Population = &pop
	}
	return z
}

// populationStep：从世界银行人口 CSV 为区划补充人口数
// 背景：数据集按 (名称, alpha-3, 年份, 数值) 逐行给出；只保留每个编码的最新年份
// 约束：以 iso3 备用标识匹配；数据集未覆盖或已有人口数的区划保持不变
func populationStep(level string) Step {
	return Step{Name: "population", Run: func(ctx context.Context, env *geo.Env) error {
		path := filepath.Join(env.Downloads, "population.csv")
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				env.Log.Warn("population_dataset_missing", "path", path)
				return nil
			}
			return err
		}
		defer f.Close()

		latest, err := readPopulationCSV(f)
		if err != nil {
			return err
		}

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
			if z.Population != nil {
				continue
			}
			for _, key := range z.Keys {
				if !strings.HasPrefix(key, "iso3:") {
					continue
				}
				if pop, ok := latest[strings.TrimPrefix(key, "iso3:")]; ok {
					p := pop
					z.Population = &p
					updates = append(updates, z)
				}
				break
			}
		}
		if err := cur.Err(); err != nil {
			return err
		}
		for _, z := range updates {
			if err := env.Zones.Upsert(ctx, z); err != nil {
				return err
			}
		}
		env.Log.Info("postprocess_population", "level", level, "updated", len(updates))
		return nil
	}}
}

// readPopulationCSV：解析 (name, code, year, value) 行，返回每个编码最新年份的人口
func readPopulationCSV(r io.Reader) (map[string]int64, error) {
	rd := csv.NewReader(r)
	rd.FieldsPerRecord = -1
	latest := make(map[string]int64)
	years := make(map[string]int)
	first := true
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			return latest, nil
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			continue // 表头
		}
		if len(rec) < 4 {
			continue
		}
		code := strings.ToLower(strings.TrimSpace(rec[1]))
		year, err := strconv.Atoi(strings.TrimSpace(rec[2]))
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if err != nil || value <= 0 {
			continue
		}
		if year >= years[code] {
			years[code] = year
			latest[code] = int64(value)
		}
	}
}
