// Package metrics exposes Prometheus collectors for the bot and the render service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiimonitor_checks_total",
			Help: "Build checks performed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiimonitor_notifications_total",
			Help: "Photos sent to Telegram, labeled by kind and result.",
		},
		[]string{"kind", "result"},
	)

	renderClientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiimonitor_render_client_requests_total",
			Help: "Calls made to the render service, labeled by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)

	renderClientDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wiimonitor_render_client_duration_seconds",
			Help:    "Latency of render service calls, labeled by endpoint.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 90},
		},
		[]string{"endpoint"},
	)

	telegramErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiimonitor_telegram_errors_total",
			Help: "Failed Telegram Bot API calls, labeled by method.",
		},
		[]string{"method"},
	)

	telegramUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wiimonitor_telegram_updates_total",
			Help: "Inbound Telegram updates processed.",
		},
	)

	rendererPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderer_pages_total",
			Help: "Pages rendered by the render service, labeled by site, endpoint and status.",
		},
		[]string{"site", "endpoint", "status"},
	)

	rendererRenderDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renderer_render_duration_seconds",
			Help:    "Histogram of browser render latencies, labeled by endpoint.",
			Buckets: []float64{1, 2.5, 5, 7.5, 10, 20, 40, 60},
		},
		[]string{"endpoint"},
	)

	rendererBrowserRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderer_browser_restarts_total",
			Help: "Browser restarts, labeled by reason.",
		},
		[]string{"reason"},
	)

	rendererInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderer_in_flight",
			Help: "Number of renders currently holding a browser tab.",
		},
	)

	rendererRateLimitDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "renderer_rate_limit_delay_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCheck counts a finished build check.
func ObserveCheck(outcome string) {
	checksTotal.WithLabelValues(outcome).Inc()
}

// ObserveNotification counts a photo delivery attempt.
func ObserveNotification(kind string, ok bool) {
	notificationsTotal.WithLabelValues(kind, resultLabel(ok)).Inc()
}

// ObserveRenderCall records one render service call.
func ObserveRenderCall(endpoint string, ok bool, duration time.Duration) {
	renderClientRequestsTotal.WithLabelValues(endpoint, resultLabel(ok)).Inc()
	renderClientDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveTelegramError counts a failed Bot API call.
func ObserveTelegramError(method string) {
	telegramErrorsTotal.WithLabelValues(method).Inc()
}

// ObserveTelegramUpdate counts one processed inbound update.
func ObserveTelegramUpdate() {
	telegramUpdatesTotal.Inc()
}

// ObserveRender records a page rendered by the render service.
func ObserveRender(site, endpoint string, ok bool, duration time.Duration) {
	rendererPagesTotal.WithLabelValues(SanitizeSite(site), endpoint, resultLabel(ok)).Inc()
	rendererRenderDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveBrowserRestart counts a browser relaunch.
func ObserveBrowserRestart(reason string) {
	rendererBrowserRestartsTotal.WithLabelValues(reason).Inc()
}

// IncInFlight increments the in-flight renders gauge.
func IncInFlight() {
	rendererInFlight.Inc()
}

// DecInFlight decrements the in-flight renders gauge.
func DecInFlight() {
	rendererInFlight.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	rendererRateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
