// Package metrics exposes prometheus counters for publishing outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for the publishing engine.
type Metrics struct {
	SendAttempts  *prometheus.CounterVec
	SendSuccesses *prometheus.CounterVec
	SendFailures  *prometheus.CounterVec
	RateLimited   *prometheus.CounterVec
	DeadLinks     prometheus.Counter
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SendAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offercast_send_attempts_total",
			Help: "Send attempts per channel.",
		}, []string{"channel"}),
		SendSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offercast_send_successes_total",
			Help: "Successful sends per channel.",
		}, []string{"channel"}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offercast_send_failures_total",
			Help: "Failed sends per channel.",
		}, []string{"channel"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offercast_rate_limited_total",
			Help: "Sends denied by the admission check per channel.",
		}, []string{"channel"}),
		DeadLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offercast_dead_links_total",
			Help: "Offers skipped because the affiliate link failed verification.",
		}),
	}

	reg.MustRegister(m.SendAttempts, m.SendSuccesses, m.SendFailures, m.RateLimited, m.DeadLinks)
	return m
}

// NewNop creates unregistered collectors for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
