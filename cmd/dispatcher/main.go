package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cankoe/reporting-scheduler/internal/dispatcher"
	"github.com/cankoe/reporting-scheduler/internal/helpers"
	"github.com/cankoe/reporting-scheduler/internal/schedules"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := helpers.InitializeCommonComponents("dispatcher")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer components.CloseAll(context.Background())

	cfg := components.Config
	engine := schedules.NewEngine(components.Store.Schedules(), log.Logger)

	var opts []dispatcher.Option
	if cfg.Dispatcher.RedisLease {
		client, err := components.Redis()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis for the dispatcher lease")
		}
		ttl := time.Duration(cfg.Dispatcher.LockTTLSeconds) * time.Second
		opts = append(opts, dispatcher.WithLease(dispatcher.NewRedisLease(client, dispatcher.DefaultLockKey), ttl))
	}

	d := dispatcher.New(engine, components.Store.Templates(), components.Store.Reports(), log.Logger, opts...)
	if err := d.Start(ctx, cfg.Dispatcher.Cron); err != nil {
		log.Fatal().Err(err).Msg("Dispatcher failed")
	}
}
