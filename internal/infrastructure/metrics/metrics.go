package metrics

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "offramp"

var (
	DepositTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposit_transitions_total",
			Help:      "Deposit status transitions by chain and new status",
		},
		[]string{"chain", "status"},
	)

	SweepOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Sweep attempts by chain and outcome",
		},
		[]string{"chain", "outcome"},
	)

	SponsorRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gas_sponsor_rejections_total",
			Help:      "Sponsorship requests rejected for insufficient capacity",
		},
		[]string{"chain"},
	)

	QuotesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_issued_total",
			Help:      "Quotes issued by asset and mode",
		},
		[]string{"asset", "mode"},
	)

	PayoutTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payout_transitions_total",
			Help:      "Payout status transitions",
		},
		[]string{"status"},
	)

	Anomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Records flagged for manual review by kind",
		},
		[]string{"kind"},
	)

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of external provider calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "outcome"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		DepositTransitions,
		SweepOutcomes,
		SponsorRejections,
		QuotesIssued,
		PayoutTransitions,
		Anomalies,
		ProviderLatency,
		HTTPRequests,
		HTTPDuration,
	}
}

// Register adds every collector to reg. Collectors already registered with reg are ignored.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveProvider records the latency of one provider call
func ObserveProvider(provider, outcome string, started time.Time) {
	ProviderLatency.WithLabelValues(provider, outcome).Observe(time.Since(started).Seconds())
}

// Handler serves the given gatherer in the Prometheus text format
func Handler(g prometheus.Gatherer) gin.HandlerFunc {
	h := promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
