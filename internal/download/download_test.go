package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"geozones/internal/geo"
)

func newTestFetcher(t *testing.T, retries int) *Fetcher {
	t.Helper()
	return NewFetcher(t.TempDir(), 2, retries, time.Millisecond, 5*time.Second)
}

func TestURLSetDedup(t *testing.T) {
	levels := []*geo.Level{
		{ID: "country", URLs: []string{"http://x/countries.json", "http://x/shared.json"}},
		{ID: "country/region", URLs: []string{"http://x/regions.json", "http://x/shared.json"}},
		{ID: "country-group"},
	}
	got := URLSet(levels)
	want := []string{"http://x/countries.json", "http://x/shared.json", "http://x/regions.json"}
	if len(got) != len(want) {
		t.Fatalf("URLSet = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("URLSet = %v, want %v", got, want)
		}
	}
}

func TestFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://host/path/countries.geojson", "countries.geojson"},
		{"http://host/path/data.zip?token=abc", "data.zip"},
		{"http://host/archive/", "archive"},
	}
	for _, tt := range tests {
		if got := Filename(tt.in); got != tt.want {
			t.Errorf("Filename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFetchAllWritesStagingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"FeatureCollection"}`))
	}))
	defer srv.Close()

	f := newTestFetcher(t, 0)
	if err := f.FetchAll(context.Background(), []string{srv.URL + "/countries.json"}); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(f.Dir, "countries.json"))
	if err != nil {
		t.Fatalf("staging file missing: %v", err)
	}
	if string(raw) != `{"type":"FeatureCollection"}` {
		t.Errorf("staging content = %q", raw)
	}
	if !Present(f.Dir, srv.URL+"/countries.json") {
		t.Error("Present = false after successful fetch")
	}
}

func TestFetchRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, 3)
	if err := f.FetchAll(context.Background(), []string{srv.URL + "/flaky.json"}); err != nil {
		t.Fatalf("FetchAll after retries: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestFetchExhaustedRetriesIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 1)
	err := f.FetchAll(context.Background(), []string{srv.URL + "/dead.json"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !geo.IsKind(err, geo.KindTransient) {
		t.Errorf("error kind = %v, want transient", err)
	}
	if Present(f.Dir, srv.URL+"/dead.json") {
		t.Error("partial file left in staging after failure")
	}
}
