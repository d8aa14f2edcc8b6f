// Package metrics holds the service's prometheus collectors. A nil *Metrics is
// valid and records nothing, so usecases never need to guard calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "p2p_lending"

type Metrics struct {
	reg prometheus.Gatherer

	investments   *prometheus.CounterVec
	payments      *prometheus.CounterVec
	loansFunded   prometheus.Counter
	upstreamCalls *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry (plus go/process collectors).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		investments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "investments_submitted_total",
			Help:      "Investment submissions by payment method and outcome.",
		}, []string{"method", "outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_resolved_total",
			Help:      "Pending transactions resolved, by final status and what resolved them.",
		}, []string{"status", "source"}),
		loansFunded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loans_funded_total",
			Help:      "Loans that reached Funded.",
		}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mpesa_calls_total",
			Help:      "Calls to the M-Pesa API by operation and result.",
		}, []string{"op", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
	reg.MustRegister(m.investments, m.payments, m.loansFunded, m.upstreamCalls, m.httpDuration)
	return m
}

func (m *Metrics) InvestmentSubmitted(method, outcome string) {
	if m == nil {
		return
	}
	m.investments.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) PaymentResolved(status, source string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status, source).Inc()
}

func (m *Metrics) LoanFunded() {
	if m == nil {
		return
	}
	m.loansFunded.Inc()
}

func (m *Metrics) UpstreamCall(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.upstreamCalls.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(d.Seconds())
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
