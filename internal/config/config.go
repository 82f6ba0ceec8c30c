package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/vanaheimr/usersapi/pkg/secrets"
)

const envPrefix = "USERSAPI"

type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Events   EventsConfig   `mapstructure:"events"`
	Router   RouterConfig   `mapstructure:"router"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

type ServiceConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	// DSN is optional; without it channels live in memory only.
	DSN            string `mapstructure:"dsn"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

type RedisConfig struct {
	// Addr is optional; without it projections are not cached.
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type EventsConfig struct {
	Broker       string   `mapstructure:"broker" validate:"oneof=none rabbitmq kafka nats"`
	Destination  string   `mapstructure:"destination" validate:"required"`
	BufferSize   int      `mapstructure:"buffer_size" validate:"gt=0"`
	RabbitMQURL  string   `mapstructure:"rabbitmq_url" validate:"required_if=Broker rabbitmq"`
	KafkaBrokers []string `mapstructure:"kafka_brokers" validate:"required_if=Broker kafka"`
	NATSURL      string   `mapstructure:"nats_url" validate:"required_if=Broker nats"`
	NATSPrefix   string   `mapstructure:"nats_prefix"`
}

type RouterConfig struct {
	// Enabled publishes delivery tasks on the events broker.
	Enabled bool `mapstructure:"enabled"`
}

type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

type SecretsConfig struct {
	AWSSecretID string `mapstructure:"aws_secret_id"`
	AWSRegion   string `mapstructure:"aws_region"`
}

// SecretSource fetches a flat key/value secret.
type SecretSource interface {
	FetchJSON(ctx context.Context, secretID string) (map[string]string, error)
}

// newSecretSource is replaced in tests.
var newSecretSource = func(ctx context.Context, region string) (SecretSource, error) {
	return secrets.NewClient(ctx, region)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "usersapi")
	v.SetDefault("service.version", "dev")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.log_level", "info")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.allowed_origins", []string{})

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrate_on_start", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 5*time.Minute)

	v.SetDefault("events.broker", "none")
	v.SetDefault("events.destination", "notification.channel-events")
	v.SetDefault("events.buffer_size", 256)
	v.SetDefault("events.rabbitmq_url", "")
	v.SetDefault("events.kafka_brokers", []string{})
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.nats_prefix", "usersapi")

	v.SetDefault("router.enabled", false)

	v.SetDefault("tracing.endpoint", "")

	v.SetDefault("secrets.aws_secret_id", "")
	v.SetDefault("secrets.aws_region", "")
}

// Load reads configuration from defaults, the optional YAML file at path,
// USERSAPI_* environment variables and, when secrets.aws_secret_id is
// set, the keys of that AWS secret, in increasing precedence.
func Load(ctx context.Context, path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("usersapi")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/usersapi")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if secretID := v.GetString("secrets.aws_secret_id"); secretID != "" {
		src, err := newSecretSource(ctx, v.GetString("secrets.aws_region"))
		if err != nil {
			return nil, err
		}
		values, err := src.FetchJSON(ctx, secretID)
		if err != nil {
			return nil, err
		}
		for key, value := range values {
			v.Set(key, value)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	// required_if accepts an empty non-nil slice
	if cfg.Events.Broker == "kafka" && len(cfg.Events.KafkaBrokers) == 0 {
		return nil, errors.New("invalid config: events.kafka_brokers is required for the kafka broker")
	}
	return &cfg, nil
}
