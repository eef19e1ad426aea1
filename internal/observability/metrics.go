package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medgama_http_requests_total",
			Help: "Total number of HTTP requests processed by the connections service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medgama_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medgama_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medgama_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medgama_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	invitesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medgama_invites_total",
			Help: "Invite creation attempts by result.",
		},
		[]string{"result"},
	)
	connectionUpsertsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medgama_connections_upserts_total",
			Help: "Total number of accepted invites written into the connection graph.",
		},
	)
	changeNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medgama_change_notifications_total",
			Help: "Change notifications dispatched after document writes.",
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		invitesTotal,
		connectionUpsertsTotal,
		changeNotificationsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncInviteResult(result string) {
	invitesTotal.WithLabelValues(result).Inc()
}

func IncConnectionUpsert() {
	connectionUpsertsTotal.Inc()
}

func IncChangeNotification(event string) {
	changeNotificationsTotal.WithLabelValues(event).Inc()
}
