package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/realmate/conversations/internal/webhook"
)

const (
	namespace = "conversations"
	subsystem = "webhook"
)

// Recorder holds the webhook metrics and observes dispatcher outcomes.
type Recorder struct {
	EventsTotal   *prometheus.CounterVec
	EventDuration *prometheus.HistogramVec
	FailuresTotal *prometheus.CounterVec
}

// NewRecorder registers the webhook metrics on reg. Pass
// prometheus.DefaultRegisterer in production.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_total",
				Help:      "Total number of processed webhook events",
			},
			[]string{"event", "status", "code"},
		),
		EventDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "event_duration_seconds",
				Help:      "Webhook processing duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"event"},
		),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "failures_total",
				Help:      "Failed webhook events by error kind",
			},
			[]string{"event", "kind"},
		),
	}
}

func (r *Recorder) ObserveOutcome(_ context.Context, outcome webhook.Outcome, elapsed time.Duration) {
	event := eventLabel(outcome.Event)
	status := "success"
	if !outcome.Success {
		status = "error"
		r.FailuresTotal.WithLabelValues(event, outcome.Kind.String()).Inc()
	}
	r.EventsTotal.WithLabelValues(event, status, strconv.Itoa(outcome.StatusCode)).Inc()
	r.EventDuration.WithLabelValues(event).Observe(elapsed.Seconds())
}

// eventLabel bounds label cardinality: unrecognised types share one series.
func eventLabel(event string) string {
	switch webhook.EventType(event) {
	case webhook.EventNewConversation, webhook.EventCloseConversation, webhook.EventNewMessage:
		return event
	default:
		return "OTHER"
	}
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
