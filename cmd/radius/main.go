package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jazanet/backend/internal/config"
	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/logging"
	"github.com/jazanet/backend/internal/models"
	"github.com/jazanet/backend/internal/radius"
	"github.com/jazanet/backend/internal/services"
	"github.com/jazanet/backend/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	log.Info().Msg("starting JazaNet RADIUS server")

	if err := database.Connect(cfg); err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer database.Close()

	if err := models.Migrate(database.DB); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	events := radius.NewEventLog()
	metrics := radius.NewMetrics()
	metrics.Register(nil)

	srv := radius.NewServer(radius.ServerConfig{
		AuthPort: cfg.RadiusAuthPort,
		AcctPort: cfg.RadiusAcctPort,
	}, store.New(database.DB), database.Redis, events, metrics, log)

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("radius server failed to start")
	}

	janitor := services.NewSessionJanitor(cfg, log)
	janitor.Start()

	var statusSrv *http.Server
	if cfg.MetricsPort > 0 {
		statusSrv = statusServer(cfg.MetricsPort, events)
		go func() {
			if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("status server failed")
			}
		}()
		log.Info().Int("port", cfg.MetricsPort).Msg("status server listening")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	if statusSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		statusSrv.Shutdown(ctx)
		cancel()
	}
	janitor.Stop()
	srv.Stop()
}

// statusServer exposes Prometheus metrics plus the JSON summary and
// event feed the admin API polls.
func statusServer(port int, events *radius.EventLog) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(events.Summary())
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(events.Recent(limit))
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
