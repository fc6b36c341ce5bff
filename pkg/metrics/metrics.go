package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "strategy_scans_total", Help: "Strategy scans completed"},
		[]string{"trigger", "status"},
	)
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strategy_scan_duration_seconds",
			Help:    "Wall time of a full strategy scan",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
	PairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scan_pairs_total", Help: "Scanned market/timeframe pairs by outcome"},
		[]string{"outcome"},
	)
	SyntheticCandlesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "synthetic_candle_fallbacks_total", Help: "Pairs scanned on synthetic candles"},
		[]string{"timeframe"},
	)
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "llm_requests_total", Help: "Language model completions"},
		[]string{"provider", "status"},
	)
	LLMLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Language model completion latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
	ParseCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "strategy_parse_cache_total", Help: "Parsed strategy lookups by source"},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		ScansTotal,
		ScanDuration,
		PairsTotal,
		SyntheticCandlesTotal,
		LLMRequestsTotal,
		LLMLatency,
		ParseCacheTotal,
	)
}

// Handler /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve 在独立端口上暴露指标，供后台进程使用
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
