// Package metrics holds the Prometheus collectors of the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	EventsTotal         *prometheus.CounterVec
	InputSkippedTotal   prometheus.Counter
	RowsWrittenTotal    prometheus.Counter
	SinkErrorsTotal     *prometheus.CounterVec
	ApplyLatencySeconds prometheus.Histogram
	BookLevels          *prometheus.GaugeVec
	LiveOrders          prometheus.Gauge

	PublishedTotal     prometheus.Counter
	PublishFailedTotal prometheus.Counter
	OutboxPending      prometheus.Gauge
}

// New registers every collector, plus the Go and process collectors, on a
// private registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbp10_events_total", Help: "MBO events processed by action",
		}, []string{"action"}),
		InputSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mbp10_input_skipped_total", Help: "Input messages dropped as unparseable",
		}),
		RowsWrittenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mbp10_rows_written_total", Help: "Records delivered to every sink",
		}),
		SinkErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbp10_sink_errors_total", Help: "Sink write failures by sink",
		}, []string{"sink"}),
		ApplyLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mbp10_apply_latency_seconds",
			Help:    "Time to apply one event and take its snapshot",
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),
		BookLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mbp10_book_levels", Help: "Resident price levels by side",
		}, []string{"side"}),
		LiveOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mbp10_live_orders", Help: "Orders in the order index",
		}),
		PublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mbp10_published_total", Help: "Outbox rows acknowledged by Kafka",
		}),
		PublishFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mbp10_publish_failed_total", Help: "Outbox publish attempts that failed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mbp10_outbox_pending", Help: "Outbox rows awaiting acknowledgement",
		}),
	}
	m.Registry.MustRegister(
		m.EventsTotal, m.InputSkippedTotal, m.RowsWrittenTotal, m.SinkErrorsTotal, m.ApplyLatencySeconds,
		m.BookLevels, m.LiveOrders,
		m.PublishedTotal, m.PublishFailedTotal, m.OutboxPending,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
