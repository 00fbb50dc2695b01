// Package metrics holds the Prometheus collectors for the session lifecycle.
//
// A nil *Collector is valid and records nothing, so components can take one
// as an optional dependency.
package metrics

import (
	"io"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "session_client"

// Exchange results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Collector groups every metric the client emits.
type Collector struct {
	Exchanges    *prometheus.CounterVec // auth exchanges by operation and result
	Retries      *prometheus.CounterVec // authorizer retries by result
	Locks        prometheus.Counter
	IdleLogouts  prometheus.Counter
	TenantEvents prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_exchanges_total",
			Help:      "Auth API exchanges by operation and result.",
		}, []string{"operation", "result"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorizer_retries_total",
			Help:      "Requests retried after a 401 and token refresh.",
		}, []string{"result"}),
		Locks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inactivity_locks_total",
			Help:      "Screen locks triggered by inactivity.",
		}),
		IdleLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inactivity_logouts_total",
			Help:      "Logouts triggered by the idle logout threshold.",
		}),
		TenantEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_events_total",
			Help:      "Active tenant changes published to subscribers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.Exchanges, c.Retries, c.Locks, c.IdleLogouts, c.TenantEvents)
	}
	return c
}

func (c *Collector) Exchange(operation string, err error) {
	if c == nil {
		return
	}
	c.Exchanges.WithLabelValues(operation, result(err)).Inc()
}

func (c *Collector) Retry(err error) {
	if c == nil {
		return
	}
	c.Retries.WithLabelValues(result(err)).Inc()
}

func (c *Collector) Lock() {
	if c == nil {
		return
	}
	c.Locks.Inc()
}

func (c *Collector) IdleLogout() {
	if c == nil {
		return
	}
	c.IdleLogouts.Inc()
}

func (c *Collector) TenantEvent() {
	if c == nil {
		return
	}
	c.TenantEvents.Inc()
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// WriteText writes every metric gathered from g in the Prometheus text
// exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return errors.Wrap(err, "[metrics.WriteText] gather")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Wrap(err, "[metrics.WriteText] encode")
		}
	}
	return nil
}
