package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure stages for MessageFailures
const (
	StageSearch  = "search"
	StageFetch   = "fetch"
	StageParse   = "parse"
	StagePersist = "persist"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	Searches        prometheus.Counter
	MessagesFetched prometheus.Counter
	Ingested        prometheus.Counter
	MessageFailures *prometheus.CounterVec
	ProcessingTime  prometheus.Histogram
	ESPClassified   *prometheus.CounterVec
	MailboxState    prometheus.Gauge
	Reconnects      prometheus.Counter
	StoredMessages  *prometheus.GaugeVec
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Searches: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_chain_analyzer_searches_total",
			Help: "Total number of mailbox search cycles",
		}),
		MessagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_chain_analyzer_messages_fetched_total",
			Help: "Total number of messages fetched from the mailbox",
		}),
		Ingested: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_chain_analyzer_messages_ingested_total",
			Help: "Total number of messages stored",
		}),
		MessageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_chain_analyzer_message_failures_total",
			Help: "Total number of failures by pipeline stage",
		}, []string{"stage"}),
		ProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mail_chain_analyzer_processing_duration_seconds",
			Help:    "Time spent processing one search cycle",
			Buckets: prometheus.DefBuckets,
		}),
		ESPClassified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_chain_analyzer_esp_classified_total",
			Help: "Total number of messages classified per provider",
		}, []string{"esp"}),
		MailboxState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mail_chain_analyzer_mailbox_state",
			Help: "Mailbox connection state (0 disconnected, 1 connecting, 2 ready, 3 ended)",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_chain_analyzer_reconnects_total",
			Help: "Total number of mailbox reconnect attempts",
		}),
		StoredMessages: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mail_chain_analyzer_stored_messages",
			Help: "Number of stored messages per provider",
		}, []string{"esp"}),
	}
}
