package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the timeshift service.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	ticksTotal            prometheus.Counter
	segmentsStoredTotal   prometheus.Counter
	downloadFailuresTotal prometheus.Counter
	activeStations        prometheus.Gauge
	errorsTotal           prometheus.Counter
}

// New creates and registers Prometheus metrics for the timeshift service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeshift_requests_total",
		Help: "Total number of HTTP requests received",
	})
	ticksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeshift_harvester_ticks_total",
		Help: "Total number of harvester polling ticks executed",
	})
	segmentsStoredTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeshift_segments_stored_total",
		Help: "Total number of segments downloaded and stored",
	})
	downloadFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeshift_download_failures_total",
		Help: "Total number of segment downloads abandoned after all retries",
	})
	activeStations := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timeshift_active_stations",
		Help: "Number of stations currently being harvested",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeshift_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		ticksTotal,
		segmentsStoredTotal,
		downloadFailuresTotal,
		activeStations,
		errorsTotal,
	)

	return &Metrics{
		registry:              registry,
		requestsTotal:         requestsTotal,
		ticksTotal:            ticksTotal,
		segmentsStoredTotal:   segmentsStoredTotal,
		downloadFailuresTotal: downloadFailuresTotal,
		activeStations:        activeStations,
		errorsTotal:           errorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncTicks increments the harvester tick counter.
func (m *Metrics) IncTicks() {
	m.ticksTotal.Inc()
}

// AddSegmentsStored adds n to the stored segments counter.
func (m *Metrics) AddSegmentsStored(n int) {
	m.segmentsStoredTotal.Add(float64(n))
}

// IncDownloadFailures increments the abandoned download counter.
func (m *Metrics) IncDownloadFailures() {
	m.downloadFailuresTotal.Inc()
}

// SetActiveStations sets the active stations gauge.
func (m *Metrics) SetActiveStations(n int) {
	m.activeStations.Set(float64(n))
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. active stations).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
