// Package metrics exposes Prometheus metrics for readings and recommendations
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrcode/glucose-calculator/internal/advice"
	"github.com/mrcode/glucose-calculator/internal/models"
)

const namespace = "glucose_calculator"

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	readings        *prometheus.CounterVec
	glucose         prometheus.Gauge
	readingTime     prometheus.Gauge
	recommendations *prometheus.CounterVec
	dextrose        prometheus.Gauge
	banana          prometheus.Gauge
}

// New creates and registers all collectors, including Go runtime and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Sensor readings stored, by feed.",
		}, []string{"source"}),
		glucose: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "glucose_mgdl",
			Help:      "Latest sensor glucose in mg/dL.",
		}),
		readingTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading_timestamp_seconds",
			Help:      "Unix time of the latest sensor reading.",
		}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Computed recommendations, by trend and whether a dose was needed.",
		}, []string{"trend", "needed"}),
		dextrose: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dextrose_grams",
			Help:      "Dextrose dose of the latest recommendation.",
		}),
		banana: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "banana_grams",
			Help:      "Banana dose of the latest recommendation.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.readings,
		m.glucose,
		m.readingTime,
		m.recommendations,
		m.dextrose,
		m.banana,
	)
	return m
}

// ObserveReading records a stored sensor reading
func (m *Metrics) ObserveReading(r models.SensorReading) {
	source := r.Source
	if source == "" {
		source = "unknown"
	}
	m.readings.WithLabelValues(source).Inc()
	m.glucose.Set(r.Glucose)
	m.readingTime.Set(float64(r.Timestamp) / 1000)
}

// Record implements advice.Sink
func (m *Metrics) Record(_ context.Context, res *advice.Result) error {
	needed := "false"
	dextrose, banana := 0.0, 0.0
	if res.Recommendation != nil {
		needed = "true"
		dextrose = res.Recommendation.DextroseGrams
		banana = res.Recommendation.BananaGrams
	}
	m.recommendations.WithLabelValues(res.Trend.String(), needed).Inc()
	m.dextrose.Set(dextrose)
	m.banana.Set(banana)
	return nil
}

// WatchHistory exports the number of points queued for InfluxDB. Call once.
func (m *Metrics) WatchHistory(written func() int64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_points_total",
		Help:      "Recommendations queued for the InfluxDB history.",
	}, func() float64 {
		return float64(written())
	}))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
