package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reqCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "abuse_engine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests received",
		},
		[]string{"method", "route", "code"},
	)

	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "abuse_engine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method", "route"},
	)

	suspiciousActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "abuse_engine",
			Name:      "suspicious_actions_total",
			Help:      "Suspicious action verdicts by reason",
		},
		[]string{"reason"},
	)

	rejectedScores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "abuse_engine",
			Name:      "rejected_scores_total",
			Help:      "Score submissions rejected by reason",
		},
		[]string{"reason"},
	)

	rejectedReferrals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "abuse_engine",
			Name:      "rejected_referrals_total",
			Help:      "Referral claims rejected by reason",
		},
		[]string{"reason"},
	)

	hardBlocks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "abuse_engine",
			Name:      "hard_blocks_total",
			Help:      "Hard blocks issued (actors and IPs)",
		},
	)

	storeWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "abuse_engine",
			Name:      "store_write_failures_total",
			Help:      "Best-effort checkpoint writes that failed, by namespace",
		},
		[]string{"namespace"},
	)
)

func init() {
	prometheus.MustRegister(reqCount, reqDuration, suspiciousActions, rejectedScores, rejectedReferrals, hardBlocks, storeWriteFailures)
}

// ObserveSuspiciousAction records a suspicious action verdict.
func ObserveSuspiciousAction(reason string) {
	suspiciousActions.WithLabelValues(reason).Inc()
}

// ObserveRejectedScore records a rejected score submission.
func ObserveRejectedScore(reason string) {
	rejectedScores.WithLabelValues(reason).Inc()
}

// ObserveRejectedReferral records a rejected referral claim.
func ObserveRejectedReferral(reason string, blocked bool) {
	rejectedReferrals.WithLabelValues(reason).Inc()
	if blocked {
		hardBlocks.Inc()
	}
}

// ObserveStoreWriteFailure records a failed checkpoint write.
func ObserveStoreWriteFailure(namespace string) {
	storeWriteFailures.WithLabelValues(namespace).Inc()
}

// Middleware records request count and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		reqCount.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		reqDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the Prometheus scrape endpoint as a gin handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
