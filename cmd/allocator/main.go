package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/zatekoja/medlogistics/backend/internal/adapters/auth"
	"github.com/zatekoja/medlogistics/backend/internal/adapters/cache"
	"github.com/zatekoja/medlogistics/backend/internal/adapters/database"
	"github.com/zatekoja/medlogistics/backend/internal/adapters/events"
	"github.com/zatekoja/medlogistics/backend/internal/adapters/memory"
	"github.com/zatekoja/medlogistics/backend/internal/api/handlers"
	"github.com/zatekoja/medlogistics/backend/internal/api/routes"
	"github.com/zatekoja/medlogistics/backend/internal/application/services"
	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/clients/rabbitmq"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
	"github.com/zatekoja/medlogistics/backend/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.GetLogger().Fatal().Err(err).Msg("failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Environment, cfg.LogLevel)
	logger := observability.GetLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			logger.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	if err := database.Migrate(ctx, pgClient); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}

	var (
		redisClient *redis.Client
		locker      providers.Locker
		eventBus    providers.EventBus
	)
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(&cfg.Redis)
		if err != nil {
			// replicas then rely on the reservations overlap constraint
			logger.Warn().Err(err).Msg("redis unavailable; cross-process locking and pub/sub disabled")
		} else {
			defer redisClient.Close()
			locker = cache.NewRedisLocker(redisClient)
			eventBus = events.NewRedisEventBus(redisClient)
			logger.Info().Strs("addrs", redisClient.Addrs()).Msg("redis client initialized")
		}
	}

	if eventBus == nil {
		eventBus = memory.NewEventBus()
	}

	var amqpPublisher providers.EventPublisher
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := rabbitmq.NewClient(&cfg.RabbitMQ)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq unavailable; durable event publishing disabled")
		} else {
			amqpPublisher = events.NewAMQPPublisher(rabbitClient)
			logger.Info().Str("exchange", cfg.RabbitMQ.Exchange).Msg("rabbitmq publisher initialized")
		}
	}

	publisher := events.NewMultiPublisher(eventBus, amqpPublisher)
	notifier := services.NewEventNotifier(publisher, cfg.Allocation.EventBufferSize, metrics)

	policy, err := auth.LoadPolicy(cfg.Allocation.AuthPolicyPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Allocation.AuthPolicyPath).Msg("failed to load authorization policy")
	}
	authorizer, err := auth.NewRankAuthorizer(policy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid authorization policy")
	}

	clock := providers.SystemClock{}
	registry := database.NewResourceAdapter(pgClient, clock)
	reservations := database.NewReservationAdapter(pgClient)
	indexes, err := services.NewIndexSet(reservations, cfg.Allocation.IndexCacheSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create interval index cache")
	}

	reservationEngine := services.NewReservationEngine(services.ReservationEngineDeps{
		Registry:     registry,
		Reservations: reservations,
		Indexes:      indexes,
		Authorizer:   authorizer,
		Clock:        clock,
		Locker:       locker,
		Notifier:     notifier,
		Metrics:      metrics,
	}, entities.ReservationStatus(cfg.Allocation.InitialReservationStatus), cfg.Allocation.LockTTL)

	dispatchEngine := services.NewDispatchEngine(
		registry,
		database.NewDispatchAdapter(pgClient),
		database.NewCrewAdapter(pgClient),
		authorizer,
		clock,
		notifier,
		metrics,
	)
	workflowEngine := services.NewWorkflowEngine(
		registry,
		database.NewWorkflowAdapter(pgClient),
		authorizer,
		clock,
		notifier,
		metrics,
	)
	resourceService := services.NewResourceService(registry, authorizer, clock, notifier, metrics)
	go tailEvents(ctx, eventBus)

	sweeper := services.NewExpirySweeper(reservationEngine, cfg.Allocation.SweepInterval)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	var server *http.Server
	if cfg.Server.Enabled {
		checks := map[string]handlers.HealthCheck{
			"postgres": pgClient.Healthy,
		}
		if redisClient != nil {
			checks["redis"] = func(ctx context.Context) error {
				return redisClient.Client().Ping(ctx).Err()
			}
		}
		sseHandler := handlers.NewSSEHandler(eventBus)
		router := routes.NewRouter(
			handlers.NewHealthHandler(checks),
			handlers.NewReservationHandler(reservationEngine),
			handlers.NewDispatchHandler(dispatchEngine),
			handlers.NewWorkflowHandler(workflowEngine),
			handlers.NewResourceHandler(resourceService),
			sseHandler,
			cfg.Server.AllowedOrigins,
			metrics,
		)
		// no WriteTimeout: event streams stay open until Shutdown closes them
		server = &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router.SetupRoutes(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		server.RegisterOnShutdown(sseHandler.Close)
		go func() {
			logger.Info().Str("addr", server.Addr).Msg("allocation API listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("allocation API failed")
				cancel()
			}
		}()
	}

	logger.Info().
		Str("initial_status", cfg.Allocation.InitialReservationStatus).
		Dur("sweep_interval", cfg.Allocation.SweepInterval).
		Bool("distributed_locks", locker != nil).
		Msg("allocator started")

	<-ctx.Done()
	logger.Info().Msg("allocator shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error during server shutdown")
		}
	}
	<-sweeperDone
	if err := notifier.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("pending domain events were not delivered")
	}
	if err := publisher.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing event publishers")
	}

	logger.Info().Msg("allocator stopped")
}

// tailEvents logs every allocation event seen on the bus
func tailEvents(ctx context.Context, bus providers.EventBus) {
	logger := observability.ComponentLogger(ctx, "event_tail")
	ch, err := bus.Subscribe(ctx, providers.EventChannelAllocation)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to subscribe to allocation events")
		return
	}
	for event := range ch {
		logger.Debug().
			Str("event_type", string(event.Type)).
			Str("aggregate_id", event.AggregateID).
			Str("status", event.Status).
			Msg("allocation event")
	}
}
