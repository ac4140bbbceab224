// Package metrics exposes Prometheus counters for check-ins, credit changes
// and chain mirroring.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services report into.
type Recorder interface {
	RecordCheckIn(tier string)
	RecordCreditChange(action string, delta int)
	RecordFeedback(rating int)
	RecordMirror(op, outcome string, duration time.Duration)
}

type Collector struct {
	checkIns       *prometheus.CounterVec
	creditChanges  *prometheus.CounterVec
	creditPoints   *prometheus.CounterVec
	feedback       *prometheus.CounterVec
	mirrorCalls    *prometheus.CounterVec
	mirrorDuration *prometheus.HistogramVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector builds a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketchain_checkins_total",
			Help: "Check-ins by punctuality tier.",
		}, []string{"tier"}),
		creditChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketchain_credit_entries_total",
			Help: "Credit log entries appended, by action.",
		}, []string{"action"}),
		creditPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketchain_credit_points_total",
			Help: "Absolute credit points moved, by action and direction.",
		}, []string{"action", "direction"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketchain_feedback_total",
			Help: "Feedback submissions by rating.",
		}, []string{"rating"}),
		mirrorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketchain_mirror_calls_total",
			Help: "Chain mirror calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		mirrorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticketchain_mirror_duration_seconds",
			Help:    "Chain mirror call latency including retries.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.checkIns,
		c.creditChanges,
		c.creditPoints,
		c.feedback,
		c.mirrorCalls,
		c.mirrorDuration,
	)
	return c
}

func (c *Collector) RecordCheckIn(tier string) {
	c.checkIns.WithLabelValues(tier).Inc()
}

func (c *Collector) RecordCreditChange(action string, delta int) {
	c.creditChanges.WithLabelValues(action).Inc()
	switch {
	case delta > 0:
		c.creditPoints.WithLabelValues(action, "gain").Add(float64(delta))
	case delta < 0:
		c.creditPoints.WithLabelValues(action, "loss").Add(float64(-delta))
	}
}

func (c *Collector) RecordFeedback(rating int) {
	c.feedback.WithLabelValues(ratingLabel(rating)).Inc()
}

func (c *Collector) RecordMirror(op, outcome string, duration time.Duration) {
	c.mirrorCalls.WithLabelValues(op, outcome).Inc()
	c.mirrorDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func ratingLabel(r int) string {
	if r < 1 || r > 5 {
		return "invalid"
	}
	return strconv.Itoa(r)
}

// Handler serves the Prometheus scrape format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Nop drops every observation.
type Nop struct{}

func (Nop) RecordCheckIn(string)                       {}
func (Nop) RecordCreditChange(string, int)             {}
func (Nop) RecordFeedback(int)                         {}
func (Nop) RecordMirror(string, string, time.Duration) {}
