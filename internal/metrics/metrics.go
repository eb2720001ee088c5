package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Requests by path and status",
	}, []string{"path", "status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speech_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"stage"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_rate_limited_total",
		Help: "Requests rejected by the sliding-window limiter",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections_active",
		Help: "Requests currently in flight",
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelcache_hits_total",
		Help: "Model cache hits",
	})

	CacheLoads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelcache_loads_total",
		Help: "Completed loader invocations",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelcache_evictions_total",
		Help: "Handles evicted by LRU pressure",
	})

	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_download_bytes_total",
		Help: "Model artifact bytes fetched",
	})
)
