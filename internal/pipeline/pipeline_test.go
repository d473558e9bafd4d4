package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"geozones/internal/config"
	"geozones/internal/download"
	"geozones/internal/geo"
	"geozones/internal/geo/geotest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Home: t.TempDir()}
	cfg.DownloadDir = "downloads"
	cfg.DistDir = "dist"
	cfg.Properties = []string{"population"}
	return cfg
}

// recorder：记录各阶段调用顺序的 Handler
type recorder struct {
	geo.NopHandler
	id      string
	calls   *[]string
	zones   []*geo.Zone // load 阶段写入的区划
	loadErr error
}

func (r *recorder) Load(ctx context.Context, env *geo.Env) (int, error) {
	*r.calls = append(*r.calls, "load:"+r.id)
	if r.loadErr != nil {
		return 0, r.loadErr
	}
	for _, z := range r.zones {
		if err := env.Zones.Upsert(ctx, z); err != nil {
			return 0, err
		}
	}
	return len(r.zones), nil
}

func (r *recorder) Aggregate(ctx context.Context, env *geo.Env) (int, error) {
	*r.calls = append(*r.calls, "aggregate:"+r.id)
	return 0, nil
}

func (r *recorder) Postprocess(ctx context.Context, env *geo.Env, only string) error {
	*r.calls = append(*r.calls, "postprocess:"+r.id+":"+only)
	return nil
}

func selection(t *testing.T, calls *[]string) []*geo.Level {
	t.Helper()
	reg, err := geo.NewRegistry(
		&geo.Level{ID: "a", Handler: &recorder{id: "a", calls: calls}},
		&geo.Level{ID: "b", Parents: []string{"a"}, Handler: &recorder{id: "b", calls: calls}},
		&geo.Level{ID: "c", Parents: []string{"b"}, Handler: &recorder{id: "c", calls: calls}},
	)
	if err != nil {
		t.Fatal(err)
	}
	sel, err := reg.Select()
	if err != nil {
		t.Fatal(err)
	}
	return sel
}

func TestLoadForwardOrder(t *testing.T) {
	var calls []string
	store := geotest.NewMemStore()
	p := New(selection(t, &calls), store, nil, nil, testConfig(t))

	if _, err := p.Load(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(calls, ","); got != "load:a,load:b,load:c" {
		t.Errorf("load order = %s", got)
	}
	if !store.Indexed() {
		t.Error("EnsureIndexes not called before loading")
	}
}

func TestLoadDropIsExplicit(t *testing.T) {
	var calls []string
	store := geotest.NewMemStore()
	ctx := context.Background()
	_ = store.Upsert(ctx, &geo.Zone{Level: "a", Code: "stale"})
	p := New(selection(t, &calls), store, nil, nil, testConfig(t))

	// 不带 drop：既有数据保留
	if _, err := p.Load(ctx, false); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get("a", "stale"); !ok {
		t.Fatal("load without drop removed existing zones")
	}
	// 显式 drop：集合清空后重建索引
	if _, err := p.Load(ctx, true); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get("a", "stale"); ok {
		t.Error("drop did not clear the collection")
	}
	if !store.Indexed() {
		t.Error("indexes not rebuilt after drop")
	}
}

func TestLoadAbortsOnLevelError(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	reg, err := geo.NewRegistry(
		&geo.Level{ID: "a", Handler: &recorder{id: "a", calls: &calls}},
		&geo.Level{ID: "b", Parents: []string{"a"}, Handler: &recorder{id: "b", calls: &calls, loadErr: boom}},
		&geo.Level{ID: "c", Parents: []string{"b"}, Handler: &recorder{id: "c", calls: &calls}},
	)
	if err != nil {
		t.Fatal(err)
	}
	sel, _ := reg.Select()
	p := New(sel, geotest.NewMemStore(), nil, nil, testConfig(t))

	_, err = p.Load(context.Background(), false)
	if err == nil {
		t.Fatal("expected stage failure")
	}
	var oe *geo.OpError
	if !errors.As(err, &oe) || oe.Level != "b" {
		t.Errorf("failing level not identified: %v", err)
	}
	// 下游层级可能依赖失败层级的产出，不允许跳过继续
	for _, c := range calls {
		if c == "load:c" {
			t.Error("stage continued past failing level")
		}
	}
}

func TestAggregateReverseOrder(t *testing.T) {
	var calls []string
	p := New(selection(t, &calls), geotest.NewMemStore(), nil, nil, testConfig(t))
	if _, err := p.Aggregate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(calls, ","); got != "aggregate:c,aggregate:b,aggregate:a" {
		t.Errorf("aggregate order = %s, want leaf to root", got)
	}
}

func TestPostprocessForwardsOnly(t *testing.T) {
	var calls []string
	p := New(selection(t, &calls), geotest.NewMemStore(), nil, nil, testConfig(t))
	if err := p.Postprocess(context.Background(), "wikipedia"); err != nil {
		t.Fatal(err)
	}
	want := "postprocess:a:wikipedia,postprocess:b:wikipedia,postprocess:c:wikipedia"
	if got := strings.Join(calls, ","); got != want {
		t.Errorf("postprocess calls = %s", got)
	}
}

func TestDownloadDedupAcrossLevels(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	shared := srv.URL + "/shared.json"
	sel := []*geo.Level{
		{ID: "a", URLs: []string{shared}},
		{ID: "b", URLs: []string{shared}},
	}
	cfg := testConfig(t)
	fetcher := download.NewFetcher(cfg.DownloadPath(), 2, 0, time.Millisecond, time.Second)
	p := New(sel, geotest.NewMemStore(), fetcher, nil, cfg)

	if err := p.Download(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("shared URL fetched %d times, want 1", got)
	}
}

func TestCoverageNumbers(t *testing.T) {
	// A 层 2 区划 1 个有人口；B 层 3 区划 3 个有人口 -> A 1/2, B 3/3, TOTAL 4/5
	store := geotest.NewMemStore()
	ctx := context.Background()
	pop := int64(1)
	zones := []*geo.Zone{
		{Level: "A", Code: "a1", Population: &pop},
		{Level: "A", Code: "a2"},
		{Level: "B", Code: "b1", Population: &pop},
		{Level: "B", Code: "b2", Population: &pop},
		{Level: "B", Code: "b3", Population: &pop},
	}
	for _, z := range zones {
		if err := store.Upsert(ctx, z); err != nil {
			t.Fatal(err)
		}
	}
	sel := []*geo.Level{{ID: "A"}, {ID: "B"}}
	p := New(sel, store, nil, nil, testConfig(t))

	cov, err := p.Coverage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cov.Total != 5 {
		t.Errorf("total = %d, want 5", cov.Total)
	}
	want := map[string][2]int64{"A": {1, 2}, "B": {3, 3}}
	for _, lc := range cov.Levels {
		w := want[lc.ID]
		if lc.Count != w[1] {
			t.Errorf("%s count = %d, want %d", lc.ID, lc.Count, w[1])
		}
		if len(lc.Props) != 1 || lc.Props[0].Count != w[0] {
			t.Errorf("%s population coverage = %+v, want %d", lc.ID, lc.Props, w[0])
		}
	}
	if len(cov.Props) != 1 || cov.Props[0].Count != 4 || cov.Props[0].Total != 5 {
		t.Errorf("total population coverage = %+v, want 4/5", cov.Props)
	}
}

// aggregator：把子层级人口汇总到本层级的最小聚合实现
type aggregator struct {
	geo.NopHandler
	level  string
	childs []string
}

func (a *aggregator) Aggregate(ctx context.Context, env *geo.Env) (int, error) {
	cur, err := env.Zones.FindByLevel(ctx, a.childs)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	sums := map[string]int64{}
	for cur.Next() {
		z, err := cur.Zone()
		if err != nil {
			return 0, err
		}
		code := z.ParentIn(a.level)
		if code == "" || z.Population == nil {
			continue
		}
		sums[code] += *z.Population
	}
	n := 0
	for code, pop := range sums {
		p := pop
		if err := env.Zones.Upsert(ctx, &geo.Zone{Level: a.level, Code: code, Population: &p}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func TestEndToEndLeafToRootPropagation(t *testing.T) {
	// country 从数据源装载；country-group 无数据源，纯聚合；
	// load 后 aggregate，父层级属性须反映其子区划之和（只允许叶向根传播）
	var calls []string
	pop := func(v int64) *int64 { return &v }
	group := &geo.Level{ID: "country-group",
		Handler: &aggregator{level: "country-group", childs: []string{"country"}}}
	country := &geo.Level{ID: "country", Parents: []string{"country-group"},
		URLs: []string{"http://example.test/countries.json"},
		Handler: &recorder{id: "country", calls: &calls, zones: []*geo.Zone{
			{Level: "country", Code: "fr", Population: pop(67), Parents: []string{"country-group:ue"}},
			{Level: "country", Code: "de", Population: pop(83), Parents: []string{"country-group:ue"}},
			{Level: "country", Code: "us", Population: pop(331), Parents: []string{"country-group:na"}},
		}},
	}
	reg, err := geo.NewRegistry(group, country)
	if err != nil {
		t.Fatal(err)
	}
	sel, _ := reg.Select()
	store := geotest.NewMemStore()
	p := New(sel, store, nil, nil, testConfig(t))
	ctx := context.Background()

	loaded, err := p.Load(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if loaded != 3 {
		t.Fatalf("loaded %d zones, want 3", loaded)
	}
	aggregated, err := p.Aggregate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if aggregated != 2 {
		t.Fatalf("aggregated %d zones, want 2", aggregated)
	}

	ue, ok := store.Get("country-group", "ue")
	if !ok {
		t.Fatal("country-group:ue not aggregated")
	}
	if *ue.Population != 150 {
		t.Errorf("ue population = %d, want 150", *ue.Population)
	}
	// 传播方向只能叶向根：子区划不得被父层级改写
	fr, _ := store.Get("country", "fr")
	if *fr.Population != 67 {
		t.Errorf("child zone mutated by aggregation: %d", *fr.Population)
	}
}
