package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vanaheimr/usersapi/internal/config"
	"github.com/vanaheimr/usersapi/internal/httpapi"
	"github.com/vanaheimr/usersapi/internal/notification"
	"github.com/vanaheimr/usersapi/pkg/database"
	"github.com/vanaheimr/usersapi/pkg/messaging"
	"github.com/vanaheimr/usersapi/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context(), cfgFile)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg.Service.Name, cfg.Service.LogLevel)

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Endpoint:       cfg.Tracing.Endpoint,
		Environment:    cfg.Service.Environment,
	})
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	var repo notification.SnapshotRepository
	if cfg.Database.DSN != "" {
		db, err := database.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		if cfg.Database.MigrateOnStart {
			version, err := database.Migrate(db, notification.Migrations, "migrations")
			if err != nil {
				return err
			}
			logger.Info("Database migrated", "version", version)
		}
		repo = notification.NewRepository(db)
	} else {
		logger.Warn("database.dsn not set, channels are kept in memory only")
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, projections will not be cached", "error", err)
		}
	}
	cache := notification.NewProjectionCache(rdb, cfg.Redis.TTL)

	registry := notification.NewRegistry()
	svc := notification.NewService(registry, repo, cache, logger.Logger)

	restored, err := svc.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore channels: %w", err)
	}
	logger.Info("Channels restored", "owners", restored)

	publisher, closer, err := newPublisher(cfg.Events, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	var router *notification.Router
	if publisher != nil {
		svc.PublishEvents(publisher, cfg.Events.Destination, cfg.Events.BufferSize)
		go svc.Run(ctx)

		if cfg.Router.Enabled {
			router = notification.NewRouter(registry, publisher, logger.Logger)
			if d, ok := publisher.(queueDeclarer); ok {
				for _, queue := range notification.DefaultQueues {
					if err := d.DeclareQueue(queue); err != nil {
						return err
					}
				}
			}
		}
	}

	hub := httpapi.NewEventHub(cfg.HTTP.AllowedOrigins, logger.Logger)
	registry.Subscribe(hub.Publish)

	server := httpapi.NewServer(svc, router, hub, logger.Logger)
	if hc, ok := publisher.(healthChecker); ok {
		server.AddHealthCheck(cfg.Events.Broker, hc.IsHealthy)
	}
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      otelhttp.NewHandler(server.Routes(), cfg.Service.Name),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Users API starting", "addr", cfg.HTTP.Addr, "broker", cfg.Events.Broker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down Users API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Users API stopped")
	return nil
}

type queueDeclarer interface {
	DeclareQueue(name string) error
}

type healthChecker interface {
	IsHealthy() bool
}

// newPublisher connects the configured broker. It returns a nil publisher
// for the "none" broker.
func newPublisher(cfg config.EventsConfig, logger *observability.Logger) (notification.Publisher, io.Closer, error) {
	switch cfg.Broker {
	case "rabbitmq":
		client, err := messaging.NewRabbitMQClient(messaging.RabbitMQConfig{
			URL:        cfg.RabbitMQURL,
			DeadLetter: true,
		}, logger.Logger)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case "kafka":
		producer := messaging.NewKafkaProducer(cfg.KafkaBrokers)
		return producer, producer, nil
	case "nats":
		publisher, err := messaging.NewNATSPublisher(cfg.NATSURL, cfg.NATSPrefix)
		if err != nil {
			return nil, nil, err
		}
		return publisher, publisher, nil
	default:
		return nil, nil, nil
	}
}
