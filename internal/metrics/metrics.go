package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "clientreg_cache_lookups_total", Help: "Response cache lookups by key kind and result"},
		[]string{"key", "result"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "clientreg_cache_errors_total", Help: "Response cache backend errors by action"},
		[]string{"action"},
	)
	CacheSetsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "clientreg_cache_sets_skipped_total", Help: "Cache fills dropped because a write raced the read"},
	)
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "clientreg_operations_total", Help: "Registry operations by outcome"},
		[]string{"op", "outcome"},
	)
	StoreLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "clientreg_store_latency_ms", Help: "Client store call latency", Buckets: prometheus.ExponentialBuckets(0.5, 2, 14)},
		[]string{"op"},
	)
	SecretIndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "clientreg_secret_index_size", Help: "Entries loaded into the secret index at warm-up"},
	)
	EventsPublishFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "clientreg_events_publish_failed_total", Help: "Lifecycle events that could not be published"},
	)
)

func Init() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		CacheLookupsTotal, CacheErrorsTotal, CacheSetsSkippedTotal,
		OperationsTotal, StoreLatencyMs, SecretIndexSize, EventsPublishFailedTotal,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		_ = reg.Register(c)
	}
	log.Info("Prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
