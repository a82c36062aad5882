// Package metrics exposes Prometheus instrumentation for the verifier.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the verifier's collectors.
type Recorder struct {
	verifications *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	rcptCodes     *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		verifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mxprobe_verifications_total",
				Help: "Total number of address verifications",
			},
			[]string{"result", "stage"}, // valid/invalid, last stage run
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mxprobe_stage_duration_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		rcptCodes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mxprobe_smtp_reply_codes_total",
				Help: "SMTP reply codes that decided a probe",
			},
			[]string{"code"},
		),
	}
}

// ObserveVerification counts one finished verification.
func (r *Recorder) ObserveVerification(stage string, valid bool) {
	if r == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	r.verifications.WithLabelValues(result, stage).Inc()
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveSMTPCode counts the reply code that decided a probe. Zero (no
// reply, e.g. a connect failure) is not recorded.
func (r *Recorder) ObserveSMTPCode(code int) {
	if r == nil || code == 0 {
		return
	}
	r.rcptCodes.WithLabelValues(strconv.Itoa(code)).Inc()
}
