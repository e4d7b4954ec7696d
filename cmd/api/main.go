package main

import (
	"bufio"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"metrosched/internal/api"
	"metrosched/internal/buildinfo"
	"metrosched/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}

	metrics.RegisterDefault()

	srvDeps, err := api.NewServer(log)
	if err != nil {
		log.WithError(err).Fatal("failed to init server")
	}

	mux := http.NewServeMux()

	// Schedules
	mux.HandleFunc("/v1/schedules", srvDeps.SchedulesHandler)
	mux.HandleFunc("/v1/schedules/generate", srvDeps.GenerateHandler)
	mux.HandleFunc("/v1/schedules/", srvDeps.ScheduleByDateHandler) // includes /{date}/stream

	// Simulation & constraints
	mux.HandleFunc("/v1/simulate", srvDeps.SimulateHandler)
	mux.HandleFunc("/v1/constraints/validate", srvDeps.ConstraintsValidateHandler)

	// Analytics
	mux.HandleFunc("/v1/analytics/performance", srvDeps.AnalyticsPerformanceHandler)
	mux.HandleFunc("/v1/analytics/trainsets/", srvDeps.AnalyticsTrainsetHandler)

	// Subscriptions
	mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)

	// Admin
	mux.HandleFunc("/v1/admin/policy", srvDeps.PolicyHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", srvDeps.WebhookDeliveryRetryHandler)
	mux.HandleFunc("/v1/admin/solve-metrics", srvDeps.SolveMetricsHandler)

	// Streaming
	mux.HandleFunc("/v1/ws", srvDeps.WSHandler)

	// Health & ops
	mux.HandleFunc("/healthz", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
	mux.HandleFunc("/debug/info", srvDeps.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(log, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.WithFields(logrus.Fields{"addr": addr, "version": buildinfo.Version}).Info("API listening")
	worker := srvDeps.NewWebhookWorker()
	worker.Start()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server error")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps WebSocket upgrades working through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func logMiddleware(log *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		dur := time.Since(start)
		status := strconv.Itoa(sw.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(dur.Seconds())
		log.WithFields(logrus.Fields{
			"remote":   r.RemoteAddr,
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"duration": dur.String(),
		}).Info("request")
	})
}
