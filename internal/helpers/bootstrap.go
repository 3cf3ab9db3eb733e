package helpers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cankoe/reporting-scheduler/internal/config"
	"github.com/cankoe/reporting-scheduler/internal/database"
	"github.com/cankoe/reporting-scheduler/internal/queue"
	"github.com/cankoe/reporting-scheduler/internal/store"
	"github.com/cankoe/reporting-scheduler/internal/store/mongostore"
	"github.com/cankoe/reporting-scheduler/internal/store/sqlstore"
)

// AppComponents is built once per process and handed to every constructor.
type AppComponents struct {
	Config      *config.Config
	Store       store.Store
	RedisClient *redis.Client
	natsConn    *nats.Conn
}

func InitializeCommonComponents(serviceName string) (*AppComponents, error) {
	return Initialize(serviceName, config.DefaultPath, os.Args[1:])
}

func Initialize(serviceName, configPath string, args []string) (*AppComponents, error) {
	cfg, err := config.LoadConfig(configPath, args)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	ConfigureLogging(cfg)
	cfg.WatchLogLevel()
	log.Info().Msgf("Starting %s service with log level %s...", serviceName, zerolog.GlobalLevel().String())

	st, err := OpenStore(context.Background(), cfg, serviceName)
	if err != nil {
		return nil, err
	}

	return &AppComponents{Config: cfg, Store: st}, nil
}

// ConfigureLogging applies log.level and log.format to the global logger.
func ConfigureLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		log.Warn().Msgf("Invalid log level '%s', defaulting to info", cfg.Log.Level)
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// OpenStore connects the storage backend selected by storage.driver.
func OpenStore(ctx context.Context, cfg *config.Config, serviceName string) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		db, err := database.NewSQLiteDB(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		st, err := sqlstore.New(ctx, db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare sqlite store: %w", err)
		}
		return st, nil
	default:
		client, err := database.NewMongoClient(ctx, cfg.Mongo.URI, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		st, err := mongostore.New(ctx, client, cfg.Mongo.Database)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("failed to prepare mongo store: %w", err)
		}
		return st, nil
	}
}

// Redis connects on first use; only the redis queue and the dispatcher
// lease need it.
func (c *AppComponents) Redis() (*redis.Client, error) {
	if c.RedisClient != nil {
		return c.RedisClient, nil
	}
	client, err := queue.NewRedisClient(c.Config.Redis.Host, c.Config.Redis.Port)
	if err != nil {
		return nil, err
	}
	c.RedisClient = client
	return client, nil
}

// OpenQueue builds the message source selected by queue.driver.
func (c *AppComponents) OpenQueue(ctx context.Context) (queue.Queue, error) {
	cfg := c.Config
	visibility := time.Duration(cfg.Queue.VisibilityTimeoutSeconds) * time.Second

	switch cfg.Queue.Driver {
	case queue.DriverSQS:
		if cfg.SQS.QueueURL == "" {
			return nil, fmt.Errorf("REPORTING_EVENTS_QUEUE_URL is required for the sqs queue driver")
		}
		return queue.NewSQSQueue(ctx, cfg.SQS.Region, cfg.SQS.QueueURL)
	case queue.DriverRedis:
		client, err := c.Redis()
		if err != nil {
			return nil, err
		}
		return queue.NewRedisQueue(client, cfg.Queue.RedisKey, visibility), nil
	case queue.DriverNATS:
		nc, err := nats.Connect(cfg.NATS.URL, nats.Timeout(5*time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to open JetStream context: %w", err)
		}
		q, err := queue.NewNATSQueue(js, queue.NATSOptions{
			Stream:     cfg.NATS.Stream,
			Subject:    cfg.NATS.Subject,
			Durable:    cfg.NATS.Durable,
			Visibility: visibility,
		})
		if err != nil {
			nc.Close()
			return nil, err
		}
		c.natsConn = nc
		return q, nil
	case queue.DriverMemory:
		log.Warn().Msg("Using in-memory queue, messages do not survive a restart")
		return queue.NewMemoryQueue(visibility), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}

func (c *AppComponents) CloseAll(ctx context.Context) {
	if c.Store != nil {
		if err := c.Store.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis client")
		}
	}
	if c.natsConn != nil {
		c.natsConn.Close()
	}
}
