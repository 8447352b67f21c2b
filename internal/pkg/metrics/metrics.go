package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curvegate_orders_total",
		Help: "The total number of buy/sell orders processed",
	}, []string{"side", "status"})

	BatchesCleared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curvegate_batches_cleared_total",
		Help: "The total number of batches cleared",
	})

	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curvegate_claims_total",
		Help: "The total number of settled claims",
	}, []string{"side"})

	TapWithdrawals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curvegate_tap_withdrawals_total",
		Help: "The total number of tap withdrawals to the beneficiary",
	})

	Rejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curvegate_rejects_total",
		Help: "Total rejected operations by failure kind",
	}, []string{"kind"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "curvegate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
