package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const DefaultPath = "config/config.yaml"

type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	HTTP struct {
		Port           int     `mapstructure:"port"`
		RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
		RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	} `mapstructure:"http"`

	Storage struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"storage"`

	Mongo struct {
		URI      string `mapstructure:"uri"`
		Database string `mapstructure:"database"`
	} `mapstructure:"mongo"`

	SQLite struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`

	Redis struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"redis"`

	Queue struct {
		Driver                   string `mapstructure:"driver"`
		MaxMessages              int    `mapstructure:"max_messages"`
		WaitSeconds              int    `mapstructure:"wait_seconds"`
		VisibilityTimeoutSeconds int    `mapstructure:"visibility_timeout_seconds"`
		ErrorBackoffSeconds      int    `mapstructure:"error_backoff_seconds"`
		RedisKey                 string `mapstructure:"redis_key"`
	} `mapstructure:"queue"`

	SQS struct {
		QueueURL string `mapstructure:"queue_url"`
		Region   string `mapstructure:"region"`
	} `mapstructure:"sqs"`

	NATS struct {
		URL     string `mapstructure:"url"`
		Stream  string `mapstructure:"stream"`
		Subject string `mapstructure:"subject"`
		Durable string `mapstructure:"durable"`
	} `mapstructure:"nats"`

	Events struct {
		AnchorTemplate string `mapstructure:"anchor_template"`
	} `mapstructure:"events"`

	Dispatcher struct {
		Cron           string `mapstructure:"cron"`
		LockTTLSeconds int    `mapstructure:"lock_ttl_seconds"`
		RedisLease     bool   `mapstructure:"redis_lease"`
	} `mapstructure:"dispatcher"`

	v *viper.Viper
}

// LoadConfig loads the configuration from file, environment variables, and command-line arguments.
// Order of precedence: defaults < config file < env vars < cmd flags.
func LoadConfig(configPath string, args []string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.rate_limit_rps", 50)
	v.SetDefault("http.rate_limit_burst", 100)
	v.SetDefault("storage.driver", "mongo")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "reporting")
	v.SetDefault("sqlite.path", "reporting.db")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("queue.driver", "sqs")
	v.SetDefault("queue.max_messages", 10)
	v.SetDefault("queue.wait_seconds", 20)
	v.SetDefault("queue.visibility_timeout_seconds", 30)
	v.SetDefault("queue.error_backoff_seconds", 5)
	v.SetDefault("queue.redis_key", "reporting_events")
	v.SetDefault("sqs.region", "us-east-1")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream", "CONTRACT_EVENTS")
	v.SetDefault("nats.subject", "contract.signing.>")
	v.SetDefault("nats.durable", "reporting-service")
	v.SetDefault("events.anchor_template", "Contract Signing Report")
	v.SetDefault("dispatcher.cron", "@every 1m")
	v.SetDefault("dispatcher.lock_ttl_seconds", 50)
	v.SetDefault("dispatcher.redis_lease", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			log.Warn().Err(err).Str("config_path", configPath).Msg("Failed to read config file, relying on defaults, env, and flags")
		}
	}

	bindEnvOrPanic(v, "log.level", "LOG_LEVEL")
	bindEnvOrPanic(v, "log.format", "LOG_FORMAT")
	bindEnvOrPanic(v, "http.port", "HTTP_PORT")
	bindEnvOrPanic(v, "http.rate_limit_rps", "HTTP_RATE_LIMIT_RPS")
	bindEnvOrPanic(v, "http.rate_limit_burst", "HTTP_RATE_LIMIT_BURST")
	bindEnvOrPanic(v, "storage.driver", "STORAGE_DRIVER")
	bindEnvOrPanic(v, "mongo.uri", "MONGO_URI")
	bindEnvOrPanic(v, "mongo.database", "MONGO_DATABASE")
	bindEnvOrPanic(v, "sqlite.path", "SQLITE_PATH")
	bindEnvOrPanic(v, "redis.host", "REDIS_HOST")
	bindEnvOrPanic(v, "redis.port", "REDIS_PORT")
	bindEnvOrPanic(v, "queue.driver", "QUEUE_DRIVER")
	bindEnvOrPanic(v, "queue.max_messages", "QUEUE_MAX_MESSAGES")
	bindEnvOrPanic(v, "queue.wait_seconds", "QUEUE_WAIT_SECONDS")
	bindEnvOrPanic(v, "queue.visibility_timeout_seconds", "QUEUE_VISIBILITY_TIMEOUT_SECONDS")
	bindEnvOrPanic(v, "queue.error_backoff_seconds", "QUEUE_ERROR_BACKOFF_SECONDS")
	bindEnvOrPanic(v, "queue.redis_key", "QUEUE_REDIS_KEY")
	bindEnvOrPanic(v, "sqs.queue_url", "REPORTING_EVENTS_QUEUE_URL")
	bindEnvOrPanic(v, "sqs.region", "AWS_REGION")
	bindEnvOrPanic(v, "nats.url", "NATS_URL")
	bindEnvOrPanic(v, "nats.stream", "NATS_STREAM")
	bindEnvOrPanic(v, "nats.subject", "NATS_SUBJECT")
	bindEnvOrPanic(v, "nats.durable", "NATS_DURABLE")
	bindEnvOrPanic(v, "events.anchor_template", "EVENTS_ANCHOR_TEMPLATE")
	bindEnvOrPanic(v, "dispatcher.cron", "DISPATCHER_CRON")
	bindEnvOrPanic(v, "dispatcher.lock_ttl_seconds", "DISPATCHER_LOCK_TTL_SECONDS")
	bindEnvOrPanic(v, "dispatcher.redis_lease", "DISPATCHER_REDIS_LEASE")

	// Only flags that were set on the command line override the other sources.
	flags := pflag.NewFlagSet("reporting", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.String("log-level", "", "Override log level")
	flags.Int("http-port", 0, "Override HTTP port")
	flags.String("storage-driver", "", "Override storage driver (mongo, sqlite)")
	flags.String("queue-driver", "", "Override queue driver (sqs, redis, nats, memory)")
	flags.String("dispatcher-cron", "", "Override dispatcher cron spec")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	bindFlagOrPanic(v, "log.level", flags.Lookup("log-level"))
	bindFlagOrPanic(v, "http.port", flags.Lookup("http-port"))
	bindFlagOrPanic(v, "storage.driver", flags.Lookup("storage-driver"))
	bindFlagOrPanic(v, "queue.driver", flags.Lookup("queue-driver"))
	bindFlagOrPanic(v, "dispatcher.cron", flags.Lookup("dispatcher-cron"))

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// WatchLogLevel re-applies log.level to the global logger whenever the
// config file changes. c itself is a startup snapshot and is not updated.
func (c *Config) WatchLogLevel() {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		level := c.v.GetString("log.level")
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			log.Warn().Str("file", e.Name).Str("level", level).Msg("Ignoring invalid log level from config change")
			return
		}
		zerolog.SetGlobalLevel(parsed)
		log.Info().Str("file", e.Name).Str("level", parsed.String()).Msg("Log level reloaded")
	})
	c.v.WatchConfig()
}

func bindEnvOrPanic(v *viper.Viper, key, env string) {
	if err := v.BindEnv(key, env); err != nil {
		log.Fatal().Err(err).Msgf("Failed to bind environment variable %s to key %s", env, key)
	}
}

func bindFlagOrPanic(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		log.Fatal().Err(err).Msgf("Failed to bind flag %s to key %s", flag.Name, key)
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "mongo":
		if cfg.Mongo.URI == "" {
			log.Warn().Msg("MONGO_URI not provided, using default")
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			return fmt.Errorf("sqlite path must be set when storage driver is sqlite")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	switch cfg.Queue.Driver {
	case "sqs":
		if cfg.SQS.QueueURL == "" {
			log.Warn().Msg("REPORTING_EVENTS_QUEUE_URL not provided, the worker cannot start")
		}
	case "redis", "nats", "memory":
	default:
		return fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}

	if cfg.HTTP.Port <= 0 {
		return fmt.Errorf("http port must be > 0, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.RateLimitRPS <= 0 || cfg.HTTP.RateLimitBurst <= 0 {
		return fmt.Errorf("http rate limit must be > 0, got %v rps burst %d", cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
	}
	if cfg.Queue.MaxMessages <= 0 {
		return fmt.Errorf("queue max_messages must be > 0, got %d", cfg.Queue.MaxMessages)
	}
	if cfg.Queue.WaitSeconds < 0 {
		return fmt.Errorf("queue wait_seconds must be >= 0, got %d", cfg.Queue.WaitSeconds)
	}
	if cfg.Queue.VisibilityTimeoutSeconds <= 0 {
		return fmt.Errorf("queue visibility_timeout_seconds must be > 0, got %d", cfg.Queue.VisibilityTimeoutSeconds)
	}
	if cfg.Queue.ErrorBackoffSeconds <= 0 {
		return fmt.Errorf("queue error_backoff_seconds must be > 0, got %d", cfg.Queue.ErrorBackoffSeconds)
	}
	if cfg.Dispatcher.LockTTLSeconds <= 0 {
		return fmt.Errorf("dispatcher lock_ttl_seconds must be > 0, got %d", cfg.Dispatcher.LockTTLSeconds)
	}

	return nil
}
