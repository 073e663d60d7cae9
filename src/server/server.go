// Package server exposes the engine's status surface: health, metrics and
// read-only views of the account, positions, cooldowns and trade history.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"riskpilot/src/engine"
	"riskpilot/src/handler"
)

// StartServer serves the status API until ctx ends, then shuts down
// gracefully.
func StartServer(ctx context.Context, port string, eng *engine.Engine) {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/account", handler.AccountHandler(eng.Ledger()))
	r.Get("/positions", handler.PositionsHandler(eng.Ledger()))
	r.Get("/cooldowns", handler.CooldownsHandler(eng.Cooldowns()))
	r.Get("/trades", handler.DefaultTradesHandler())
	r.Get("/stats", handler.DefaultStatsHandler())

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
