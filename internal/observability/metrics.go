package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iamwavecut/ngmod/internal/moderation"
)

// Metrics records moderation measurements. It implements moderation.Observer.
type Metrics struct {
	messagesHandled   *prometheus.CounterVec
	messageDuration   *prometheus.HistogramVec
	directives        *prometheus.CounterVec
	directiveDuration *prometheus.HistogramVec
	storeFailures     *prometheus.CounterVec
}

var _ moderation.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		messagesHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ngmod_messages_handled_total",
			Help: "Messages run through the moderation engine, by outcome",
		}, []string{"outcome"}),
		messageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ngmod_message_duration_seconds",
			Help:    "Time spent handling a message, by outcome",
			Buckets: prometheus.ExponentialBucketsRange(0.0005, 30, 16),
		}, []string{"outcome"}),
		directives: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ngmod_directives_total",
			Help: "Platform directives executed, by kind and status",
		}, []string{"kind", "status"}),
		directiveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ngmod_directive_duration_seconds",
			Help:    "Time to execute a platform directive",
			Buckets: prometheus.ExponentialBucketsRange(0.001, 30, 16),
		}, []string{"kind"}),
		storeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ngmod_store_failures_total",
			Help: "Violation store operations that failed",
		}, []string{"op"}),
	}
}

func (m *Metrics) MessageHandled(outcome moderation.Outcome, elapsed time.Duration) {
	m.messagesHandled.WithLabelValues(string(outcome)).Inc()
	m.messageDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

func (m *Metrics) StoreFailed(op string) {
	m.storeFailures.WithLabelValues(op).Inc()
}

// Instrument wraps next so that every directive is counted and timed.
func (m *Metrics) Instrument(next moderation.Executor) moderation.Executor {
	return &instrumentedExecutor{next: next, metrics: m}
}

type instrumentedExecutor struct {
	next    moderation.Executor
	metrics *Metrics
}

func (x *instrumentedExecutor) Execute(ctx context.Context, d moderation.Directive) moderation.Result {
	kind := "unknown"
	if d != nil {
		kind = string(d.Kind())
	}
	started := time.Now()
	res := x.next.Execute(ctx, d)
	x.metrics.directiveDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())

	status := "ok"
	if res.Err != nil {
		status = "error"
	}
	x.metrics.directives.WithLabelValues(kind, status).Inc()
	return res
}
