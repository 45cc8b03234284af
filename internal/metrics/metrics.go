// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "civicbot"

var (
	once sync.Once

	// ReportsCreatedTotal counts accepted citizen submissions.
	ReportsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reports",
		Name:      "created_total",
		Help:      "Total number of reports accepted at intake.",
	})

	// ClassificationsTotal counts classifications by source (ai, fallback, disabled).
	ClassificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "classifications_total",
		Help:      "Total number of report classifications, labeled by source.",
	}, []string{"source"})

	// EmailsTotal counts notify outcomes (sent, simulated, already_sent, failed).
	EmailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "emails_total",
		Help:      "Total number of authority notifications, labeled by result.",
	}, []string{"result"})

	// TweetsTotal counts tweet outcomes, including rejection reasons.
	TweetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "tweets_total",
		Help:      "Total number of tweet attempts, labeled by result.",
	}, []string{"result"})

	// MonitorRunsTotal counts monitor passes by result (ok, config_error, rate_limited, failed, busy).
	MonitorRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "runs_total",
		Help:      "Total number of mention monitor passes, labeled by result.",
	}, []string{"result"})

	// MonitorRepliesTotal counts reply attempts by result (sent, failed).
	MonitorRepliesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "replies_total",
		Help:      "Total number of monitor replies, labeled by result.",
	}, []string{"result"})

	// AIUsageUsed mirrors the daily AI usage counter.
	AIUsageUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "usage_used",
		Help:      "AI classification calls recorded today.",
	})

	// HTTPRequestDurationSeconds is request latency by route and status.
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, labeled by route, method and status.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"route", "method", "status"})
)

// Register registers civicbot metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ReportsCreatedTotal,
			ClassificationsTotal,
			EmailsTotal,
			TweetsTotal,
			MonitorRunsTotal,
			MonitorRepliesTotal,
			AIUsageUsed,
			HTTPRequestDurationSeconds,
		)
	})
}

// Middleware observes request latency. Unmatched routes share one label.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestDurationSeconds.
			WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
