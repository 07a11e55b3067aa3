package prom

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/helpcomp/txn-normalizer/httperror"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"
	"github.com/rs/zerolog/log"
)

// NewRegistry returns a registry holding the version collector and an Exporter
// for stats.
func NewRegistry(appName string, stats *Stats) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		versioncollector.NewCollector(appName),
		NewExporter(appName, stats),
	)
	return reg
}

// NewHandler builds the metrics mux: metrics path, landing page, /health and
// /status.
func NewHandler(appName, appDesc, metricsPath string, reg *prometheus.Registry, stats *Stats) (http.Handler, error) {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	if metricsPath != "/" && metricsPath != "" {
		landingConfig := web.LandingConfig{
			Name:        appName,
			Description: appDesc,
			Version:     version.Print(appName),
			Links: []web.LandingLinks{
				{
					Address: metricsPath,
					Text:    "Metrics",
				},
				{
					Address: "/health",
					Text:    "Health",
				},
				{
					Address: "/status",
					Text:    "Status",
				},
			},
		}
		landingPage, err := web.NewLandingPage(landingConfig)
		if err != nil {
			return nil, fmt.Errorf("building landing page: %w", err)
		}
		mux.Handle("/", landingPage)
	}
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/status", StatusHandler(stats))
	return mux, nil
}

func HealthHandler(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// StatusHandler reports the live run counters as JSON.
func StatusHandler(stats *Stats) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			httperror.Send(w, req, http.StatusMethodNotAllowed, fmt.Sprintf("Unsupported method %s", req.Method))
			return
		}
		if stats == nil {
			httperror.Send(w, req, http.StatusServiceUnavailable, "no run in progress")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats.Snapshot())
	}
}

// Serve starts the metrics server in the background. The caller owns Shutdown.
func Serve(addr string, handler http.Handler) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("Starting metrics server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Error starting HTTP server")
		}
	}()
	return server
}

// Push sends the final run metrics to a Prometheus Pushgateway.
func Push(url, job string, reg *prometheus.Registry) error {
	if err := push.New(url, job).Gatherer(reg).Push(); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
