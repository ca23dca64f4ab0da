package aggregator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hfentity"

type Metrics struct {
	registry *prometheus.Registry

	PostsProcessed  *prometheus.CounterVec
	PostsSkipped    prometheus.Counter
	EntitiesCreated *prometheus.CounterVec
	Announcements   *prometheus.CounterVec
	QueueErrors     prometheus.Counter
	DeadLetters     prometheus.Counter
	EnrichDuration  prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PostsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_processed_total",
			Help:      "Posts taken off the queue, by final enrichment state",
		}, []string{"state"}),
		PostsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_skipped_total",
			Help:      "Posts skipped because the ledger already holds them",
		}),
		EntitiesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_created_total",
			Help:      "Projects and topics created",
		}, []string{"kind"}),
		Announcements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_total",
			Help:      "Telegram announcements delivered, by entity kind",
		}, []string{"kind"}),
		QueueErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_errors_total",
			Help:      "Failed queue reads",
		}),
		DeadLetters: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Unresolved posts written to the dead letter list",
		}),
		EnrichDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrich_duration_seconds",
			Help:      "Time spent enriching one post",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
