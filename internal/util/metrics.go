package util

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ObserveDuration starts a timer against a histogram and returns the
// function that records the elapsed seconds.
func ObserveDuration(h prometheus.Histogram) func() {
	start := time.Now()
	return func() {
		h.Observe(time.Since(start).Seconds())
	}
}

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of shop orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order attempts",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	StockRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_rejections_total",
		Help: "Order attempts rejected for insufficient stock",
	}, []string{"product_id"})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Admin order status transitions",
	}, []string{"to_status"})

	DonationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "donations_created_total",
		Help: "Total number of pending donations created",
	})

	DonationsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "donations_completed_total",
		Help: "Donations settled by reconciliation, by signal source",
	}, []string{"source"})

	DonationsDuplicateSignalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "donations_duplicate_signals_total",
		Help: "Confirmation signals observed after the donation was already settled",
	})

	SignatureFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signature_failures_total",
		Help: "Rejected payment confirmations with invalid signatures",
	}, []string{"path"})

	GatewayOrderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_order_latency_seconds",
		Help:    "Latency of payment gateway order creation",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
