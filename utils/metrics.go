package utils

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadboard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threadboard_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "threadboard_active_requests",
			Help: "Number of requests being served",
		},
	)

	ReplyWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadboard_reply_writes_total",
			Help: "Reply tree mutations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	RepliesRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "threadboard_replies_removed_total",
			Help: "Replies removed, counting every node of deleted subtrees",
		},
	)

	LiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "threadboard_live_subscribers",
			Help: "Open websocket subscriptions to reply changes",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveRequests,
		ReplyWrites,
		RepliesRemoved,
		LiveSubscribers,
	)
}
