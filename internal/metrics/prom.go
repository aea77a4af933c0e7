package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Message outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Stream end reasons.
const (
	EndTimeout    = "timeout"
	EndDisconnect = "disconnect"
	EndWriteError = "write_error"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatmi_bridge_build_info",
			Help: "Build information",
		},
		[]string{"version"},
	)

	messageRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmi_bridge_messages_total",
			Help: "JSON-RPC messages handled, by outcome",
		},
		[]string{"outcome"},
	)

	webhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatmi_bridge_webhook_duration_seconds",
			Help:    "Chatmi webhook call duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	streamsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatmi_bridge_streams_opened_total",
			Help: "Event streams opened",
		},
	)

	streamsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmi_bridge_streams_closed_total",
			Help: "Event streams closed, by reason",
		},
		[]string{"reason"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, messageRequests, webhookDuration, streamsOpened, streamsClosed)
}

// RegisterActiveStreams exposes the number of registered streams as a gauge
// evaluated at scrape time.
func RegisterActiveStreams(r prometheus.Registerer, count func() int) {
	r.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chatmi_bridge_active_streams",
			Help: "Event streams currently registered",
		},
		func() float64 { return float64(count()) },
	))
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// RecordMessage increments the message counter for outcome.
func RecordMessage(outcome string) {
	messageRequests.WithLabelValues(outcome).Inc()
}

// ObserveWebhook records the duration of a webhook call.
func ObserveWebhook(success bool, d time.Duration) {
	outcome := OutcomeOK
	if !success {
		outcome = OutcomeError
	}
	webhookDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordStreamOpened increments the opened streams counter.
func RecordStreamOpened() {
	streamsOpened.Inc()
}

// RecordStreamClosed increments the closed streams counter for reason.
func RecordStreamClosed(reason string) {
	streamsClosed.WithLabelValues(reason).Inc()
}
