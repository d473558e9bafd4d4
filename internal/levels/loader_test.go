package levels

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"geozones/internal/geo"
	"geozones/internal/geo/geotest"
)

func testEnv(t *testing.T, store *geotest.MemStore) *geo.Env {
	t.Helper()
	return &geo.Env{
		Zones:     store,
		Downloads: t.TempDir(),
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writeStaged(t *testing.T, env *geo.Env, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(env.Downloads, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const countriesSample = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:OGC:1.3:CRS84"}},
  "features": [
    {"type": "Feature",
     "properties": {"ISO3166-1-Alpha-2": "FR", "ISO3166-1-Alpha-3": "FRA", "name": "France"},
     "geometry": {"type": "Point", "coordinates": [2.2, 46.2]}},
    {"type": "Feature",
     "properties": {"ISO3166-1-Alpha-2": "DE", "ISO3166-1-Alpha-3": "DEU", "name": "Germany", "POP_EST": 83000000},
     "geometry": {"type": "Point", "coordinates": [10.4, 51.1]}},
    {"type": "Feature",
     "properties": {"name": "Disputed area"},
     "geometry": null}
  ]
}`

func TestDatasetLoaderLoad(t *testing.T) {
	store := geotest.NewMemStore()
	env := testEnv(t, store)
	writeStaged(t, env, "countries.geojson", countriesSample)

	loader := &DatasetLoader{File: "countries.geojson", Level: "country", Map: mapCountry}
	n, err := loader.Load(context.Background(), env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Fatalf("loaded %d zones, want 2 (placeholder skipped)", n)
	}
	fr, ok := store.Get("country", "fr")
	if !ok {
		t.Fatal("country:fr not stored")
	}
	if fr.Name != "France" {
		t.Errorf("name = %q", fr.Name)
	}
	if fr.ParentIn("country-group") != "world" {
		t.Errorf("parents = %v, want world group", fr.Parents)
	}
	de, _ := store.Get("country", "de")
	if de.Population == nil || *de.Population != 83000000 {
		t.Errorf("population not mapped: %+v", de.Population)
	}
}

func TestDatasetLoaderIdempotent(t *testing.T) {
	// 同一数据集装载两次，(level, code) 键幂等，总数不变
	store := geotest.NewMemStore()
	env := testEnv(t, store)
	writeStaged(t, env, "countries.geojson", countriesSample)
	loader := &DatasetLoader{File: "countries.geojson", Level: "country", Map: mapCountry}
	ctx := context.Background()
	if _, err := loader.Load(ctx, env); err != nil {
		t.Fatal(err)
	}
	first := store.Len()
	if _, err := loader.Load(ctx, env); err != nil {
		t.Fatal(err)
	}
	if store.Len() != first {
		t.Errorf("reload changed zone count: %d -> %d", first, store.Len())
	}
}

func TestDatasetLoaderMissingFile(t *testing.T) {
	env := testEnv(t, geotest.NewMemStore())
	loader := &DatasetLoader{File: "absent.geojson", Level: "country", Map: mapCountry}
	_, err := loader.Load(context.Background(), env)
	if err == nil {
		t.Fatal("expected error for missing dataset")
	}
	if !geo.IsKind(err, geo.KindUsage) {
		t.Errorf("error kind = %v, want usage", err)
	}
}

func TestStreamFeaturesTopLevelArray(t *testing.T) {
	env := testEnv(t, geotest.NewMemStore())
	writeStaged(t, env, "bare.geojson", `[
        {"type":"Feature","properties":{"ISO3166-1-Alpha-2":"IT","name":"Italy"},"geometry":null}
    ]`)
	loader := &DatasetLoader{File: "bare.geojson", Level: "country", Map: mapCountry}
	n, err := loader.Load(context.Background(), env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 1 {
		t.Errorf("loaded %d, want 1", n)
	}
}

func TestStreamFeaturesMalformed(t *testing.T) {
	env := testEnv(t, geotest.NewMemStore())
	writeStaged(t, env, "bad.geojson", `{"type":"FeatureCollection"}`)
	loader := &DatasetLoader{File: "bad.geojson", Level: "country", Map: mapCountry}
	if _, err := loader.Load(context.Background(), env); err == nil {
		t.Fatal("expected error for document without features")
	}
}

func TestMapRegion(t *testing.T) {
	geom := json.RawMessage(`{"type":"Point","coordinates":[2.3,48.8]}`)
	z := mapRegion(map[string]any{"iso_3166_2": "FR-IDF", "name": "Île-de-France"}, geom)
	if z == nil {
		t.Fatal("mapRegion returned nil")
	}
	if z.Code != "fr-idf" {
		t.Errorf("code = %q", z.Code)
	}
	if z.ParentIn("country") != "fr" {
		t.Errorf("parents = %v", z.Parents)
	}
	if mapRegion(map[string]any{"name": "no code"}, nil) != nil {
		t.Error("feature without iso code should be skipped")
	}
}
