// 包 metrics：管道运行指标；长任务期间可通过 METRICS_ADDR 暴露给 Prometheus 抓取
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ZonesLoadedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geozones_zones_loaded_total",
		Help: "Zones written by the load stage",
	}, []string{"level"})
	ZonesAggregatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geozones_zones_aggregated_total",
		Help: "Zones written by the aggregate stage",
	}, []string{"level"})
	DownloadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geozones_download_bytes_total",
		Help: "Bytes fetched into the staging directory",
	})
	DownloadRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geozones_download_retries_total",
		Help: "Download attempts retried after a transient failure",
	})
	DownloadFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geozones_download_failures_total",
		Help: "Downloads failed after exhausting retries",
	})
	StageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geozones_stage_duration_seconds",
		Help:    "Wall time per pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800},
	}, []string{"stage"})
	ExportedFilesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geozones_exported_files_total",
		Help: "Files written by the dist stage (archives included)",
	})
)

func init() {
	prometheus.MustRegister(ZonesLoadedTotal)
	prometheus.MustRegister(ZonesAggregatedTotal)
	prometheus.MustRegister(DownloadBytesTotal)
	prometheus.MustRegister(DownloadRetriesTotal)
	prometheus.MustRegister(DownloadFailuresTotal)
	prometheus.MustRegister(StageDurationSeconds)
	prometheus.MustRegister(ExportedFilesTotal)
}

// Handler：返回 Prometheus 指标处理器
// 背景：管道是批处理进程，仅在配置了监听地址时由入口按需挂载
func Handler() http.Handler { return promhttp.Handler() }

// Serve：在独立协程上暴露 /metrics；addr 为空时不启动
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	go func() { _ = http.ListenAndServe(addr, mux) }()
}
