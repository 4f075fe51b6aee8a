package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CandidateRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "basefriends_candidate_requests_total",
		Help: "Total candidate list requests",
	})
	CandidateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "basefriends_candidate_duration_seconds",
		Help:    "Candidate pipeline duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "basefriends_cache_hits_total",
		Help: "Total candidate cache hits",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "basefriends_cache_misses_total",
		Help: "Total candidate cache misses",
	})
	MockFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "basefriends_mock_fallbacks_total",
		Help: "Total responses served from the mock dataset",
	})
	SwipeWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "basefriends_swipe_writes_total",
		Help: "Total recorded swipe actions",
	}, []string{"action"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "basefriends_neynar_retries_total",
		Help: "Total Neynar API retry attempts",
	}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(CandidateRequests, CandidateDuration, CacheHits, CacheMisses, MockFallbacks, SwipeWrites, APIRetries)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveCandidateDuration records one candidate pipeline run.
func ObserveCandidateDuration(start time.Time) {
	CandidateDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }
