package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cankoe/reporting-scheduler/internal/events"
	"github.com/cankoe/reporting-scheduler/internal/helpers"
	"github.com/cankoe/reporting-scheduler/internal/metrics"
	"github.com/cankoe/reporting-scheduler/internal/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Msgf("Received signal %s, shutting down Worker gracefully...", sig)
		cancel()
	}()

	components, err := helpers.InitializeCommonComponents("worker")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer components.CloseAll(context.Background())

	cfg := components.Config
	q, err := components.OpenQueue(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Queue.Driver).Msg("Failed to open event queue")
	}
	defer q.Close()

	recorder := metrics.NewRecorder(components.Store.Metrics(), log.Logger)
	router := events.NewRouter(components.Store.Templates(), recorder, log.Logger,
		events.WithAnchorTemplate(cfg.Events.AnchorTemplate))

	loop := worker.NewLoop(q, router, worker.Config{
		MaxMessages:  cfg.Queue.MaxMessages,
		Wait:         time.Duration(cfg.Queue.WaitSeconds) * time.Second,
		ErrorBackoff: time.Duration(cfg.Queue.ErrorBackoffSeconds) * time.Second,
	}, log.Logger)

	log.Info().Str("driver", cfg.Queue.Driver).Int("max_messages", cfg.Queue.MaxMessages).Msg("Worker polling for contract events")
	loop.Run(ctx)
	log.Info().Msg("Worker service exited gracefully")
}
