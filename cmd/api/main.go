package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/cankoe/reporting-scheduler/internal/api"
	"github.com/cankoe/reporting-scheduler/internal/helpers"
	"github.com/cankoe/reporting-scheduler/internal/metrics"
	"github.com/cankoe/reporting-scheduler/internal/schedules"
)

const shutdownTimeout = 10 * time.Second

func main() {
	components, err := helpers.InitializeCommonComponents("api")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer components.CloseAll(context.Background())

	cfg := components.Config
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := schedules.NewEngine(components.Store.Schedules(), log.Logger)
	recorder := metrics.NewRecorder(components.Store.Metrics(), log.Logger)
	router := api.NewRouter(api.NewServer(components.Store, engine, recorder), cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTP.Port).Msg("API server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Msgf("Received signal %s, shutting down API gracefully...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("API server forced to shut down")
	}
	log.Info().Msg("API service exited gracefully")
}
