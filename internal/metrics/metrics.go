package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	WizardMessages   prometheus.Counter
	ChatbotsCreated  prometheus.Counter
	RelayMessages    prometheus.Counter
	RelayApologies   prometheus.Counter
	ProviderRequests *prometheus.CounterVec
	WSConnections    prometheus.Gauge
	UpdatesTotal     prometheus.Counter
	EnqueuedJobs     prometheus.Counter
	ProcessedJobs    prometheus.Counter
	FailedJobs       prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			WizardMessages: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "botsmith",
				Name:      "wizard_messages_total",
				Help:      "Total messages handled by the agent creation wizard",
			}),
			ChatbotsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "botsmith",
				Name:      "chatbots_created_total",
				Help:      "Total chatbots materialised from finished wizard sessions",
			}),
			RelayMessages: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "botsmith",
				Name:      "relay_messages_total",
				Help:      "Total user messages relayed to a chatbot",
			}),
			RelayApologies: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "botsmith",
				Name:      "relay_apologies_total",
				Help:      "Total relay replies replaced by the apology message",
			}),
			ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "botsmith",
				Name:      "provider_requests_total",
				Help:      "LLM provider calls by outcome",
			}, []string{"provider", "outcome"}),
			WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "botsmith",
				Name:      "ws_connections",
				Help:      "Open live chat websocket connections",
			}),
			UpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "botsmith",
				Name:      "telegram_updates_total",
				Help:      "Total telegram updates received",
			}),
			EnqueuedJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "botsmith",
				Name:      "relay_jobs_enqueued_total",
				Help:      "Total telegram relay jobs enqueued",
			}),
			ProcessedJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "botsmith",
				Name:      "relay_jobs_processed_total",
				Help:      "Total telegram relay jobs processed successfully",
			}),
			FailedJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "botsmith",
				Name:      "relay_jobs_failed_total",
				Help:      "Total telegram relay job attempts that failed",
			}),
		}
		prometheus.MustRegister(
			global.WizardMessages,
			global.ChatbotsCreated,
			global.RelayMessages,
			global.RelayApologies,
			global.ProviderRequests,
			global.WSConnections,
			global.UpdatesTotal,
			global.EnqueuedJobs,
			global.ProcessedJobs,
			global.FailedJobs,
		)
	})
	return global
}
