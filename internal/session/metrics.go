package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts session lifecycle events. Launched and released browsers
// must be equal once every session has finished.
type Metrics struct {
	SessionsStarted  prometheus.Counter
	SessionsRejected prometheus.Counter
	SessionsFinished *prometheus.CounterVec
	BrowsersLaunched prometheus.Counter
	BrowsersReleased prometheus.Counter
	RecordsWritten   prometheus.Counter
	FramesDropped    prometheus.Counter
	ActiveSessions   prometheus.Gauge
}

// NewMetrics registers the collectors on reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "zkcred", Name: "sessions_started_total",
			Help: "Verification sessions accepted.",
		}),
		SessionsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "zkcred", Name: "sessions_rejected_total",
			Help: "Start requests rejected before a session was created.",
		}),
		SessionsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zkcred", Name: "sessions_finished_total",
			Help: "Sessions by terminal phase.",
		}, []string{"phase"}),
		BrowsersLaunched: f.NewCounter(prometheus.CounterOpts{
			Namespace: "zkcred", Name: "browsers_launched_total",
			Help: "Browser instances launched.",
		}),
		BrowsersReleased: f.NewCounter(prometheus.CounterOpts{
			Namespace: "zkcred", Name: "browsers_released_total",
			Help: "Browser instances torn down.",
		}),
		RecordsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: "zkcred", Name: "records_written_total",
			Help: "Verification records persisted.",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "zkcred", Name: "frames_dropped_total",
			Help: "Screencast frames dropped because the client fell behind.",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "zkcred", Name: "sessions_active",
			Help: "Sessions currently running.",
		}),
	}
}
