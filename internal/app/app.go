// Package app wires configuration into a running fern process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/contact"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/redis"
	contactroutes "github.com/Ramsey-B/fern/pkg/routes/contact"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/server"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	LockNone  = "none"
	LockLocal = "local"
	LockRedis = "redis"
)

const shutdownTimeout = 15 * time.Second

// store is what the resolver needs from either contact store
type store interface {
	identity.ContactStore
	identity.Transactor
}

// App owns every long-lived dependency. Start brings up the infrastructure and
// the resolver; Run additionally serves HTTP and consumes Kafka.
type App struct {
	cfg     config.Config
	logger  ectologger.Logger
	startup *startup.Startup
	checker *health.Checker

	tracer   *sdktrace.TracerProvider
	db       database.DB
	store    store
	redis    *redis.Client
	graph    *graph.Client
	producer *kafka.Producer
	resolver *identity.Resolver
}

// New validates the configured modes and registers the start-up dependencies.
// Nothing is connected until Start.
func New(cfg config.Config, logger ectologger.Logger) (*App, error) {
	switch cfg.StoreDriver {
	case StoreMemory, StorePostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver: %s (use 'postgres' or 'memory')", cfg.StoreDriver)
	}
	switch cfg.ResolveLockMode {
	case LockNone, LockLocal, LockRedis:
	default:
		return nil, fmt.Errorf("unsupported lock mode: %s (use 'none', 'local' or 'redis')", cfg.ResolveLockMode)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		checker: health.NewChecker(cfg.Version),
	}
	a.register()
	return a, nil
}

func (a *App) useRedis() bool {
	return a.cfg.RedisEnabled || a.cfg.ResolveLockMode == LockRedis
}

func (a *App) register() {
	var resolverNeeds []string

	if a.cfg.TracingEnabled {
		a.startup.AddDependency(startup.Dependency{
			Name:      "tracing",
			StartFunc: a.startTracing,
			StopFunc: func(ctx context.Context) error {
				return a.tracer.Shutdown(ctx)
			},
		})
		resolverNeeds = append(resolverNeeds, "tracing")
	}

	if a.cfg.StoreDriver == StorePostgres {
		a.startup.AddDependency(startup.Dependency{
			Name:      "database",
			StartFunc: a.startDatabase,
			StopFunc: func(context.Context) error {
				return a.db.Close()
			},
		})
		resolverNeeds = append(resolverNeeds, "database")
	}

	if a.useRedis() {
		a.startup.AddDependency(startup.Dependency{
			Name:      "redis",
			StartFunc: a.startRedis,
			StopFunc: func(context.Context) error {
				return a.redis.Close()
			},
		})
		resolverNeeds = append(resolverNeeds, "redis")
	}

	if a.cfg.GraphEnabled {
		a.startup.AddDependency(startup.Dependency{
			Name:      "graph",
			StartFunc: a.startGraph,
			StopFunc: func(ctx context.Context) error {
				return a.graph.Close(ctx)
			},
		})
		resolverNeeds = append(resolverNeeds, "graph")
	}

	if a.cfg.KafkaProducerEnabled {
		a.startup.AddDependency(startup.Dependency{
			Name: "kafka-producer",
			StartFunc: func(context.Context) error {
				a.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      a.cfg.KafkaBrokers,
					Topic:        a.cfg.KafkaOutputTopic,
					BatchSize:    a.cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: a.cfg.KafkaRequiredAcks,
					Compression:  a.cfg.KafkaCompression,
				}, a.logger)
				return nil
			},
			StopFunc: func(context.Context) error {
				return a.producer.Close()
			},
		})
		resolverNeeds = append(resolverNeeds, "kafka-producer")
	}

	a.startup.AddDependency(startup.Dependency{
		Name:  "resolver",
		Needs: resolverNeeds,
		StartFunc: func(context.Context) error {
			a.resolver = a.buildResolver()
			return nil
		},
	})
}

func (a *App) startTracing(ctx context.Context) error {
	provider, err := tracing.NewProvider(ctx, tracing.Config{
		ServiceName:    a.cfg.AppName,
		ServiceVersion: a.cfg.Version,
		Exporter:       a.cfg.TracingExporter,
		OTLP: exporters.OTLPConfig{
			Endpoint: a.cfg.OTLPEndpoint,
			Protocol: a.cfg.OTLPProtocol,
			Insecure: a.cfg.OTLPInsecure,
		},
		Logger: a.logger,
	})
	if err != nil {
		return err
	}
	a.tracer = provider
	return nil
}

func (a *App) startDatabase(ctx context.Context) error {
	db, err := Connect(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}

	if a.cfg.DatabaseMigrateOnStart {
		if err := Migrate(a.cfg, db, a.logger); err != nil {
			_ = db.Close()
			return err
		}
	}

	a.db = db
	a.checker.AddCheck("database", db.PingContext)
	return nil
}

func (a *App) startRedis(ctx context.Context) error {
	client, err := redis.NewClient(ctx, redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}

	a.redis = client
	if a.cfg.ResolveLockMode == LockRedis {
		a.checker.AddCheck("redis", client.Ping)
	} else {
		a.checker.AddOptionalCheck("redis", client.Ping)
	}
	return nil
}

func (a *App) startGraph(ctx context.Context) error {
	client, err := graph.NewClient(graph.Config{
		Host:     a.cfg.GraphDBHost,
		Port:     a.cfg.GraphDBPort,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("failed to reach graph database: %w", err)
	}

	a.graph = client
	a.checker.AddOptionalCheck("graph", client.VerifyConnectivity)
	return nil
}

func (a *App) buildResolver() *identity.Resolver {
	if a.cfg.StoreDriver == StoreMemory {
		a.store = contact.NewMemoryStore()
	} else {
		a.store = contact.NewRepository(a.db, a.logger)
	}

	observers := []identity.Observer{metrics.NewRecorder()}
	if a.producer != nil {
		observers = append(observers, events.NewEmitter(a.producer, a.logger))
	}
	if a.graph != nil {
		observers = append(observers, graph.NewMirror(a.graph, a.logger))
	}

	opts := []identity.Option{identity.WithObservers(observers...)}
	switch a.cfg.ResolveLockMode {
	case LockLocal:
		opts = append(opts, identity.WithLocker(identity.NewLocalLocker()))
	case LockRedis:
		opts = append(opts, identity.WithLocker(redis.NewLocker(a.redis, a.cfg.RedisKeyPrefix, a.cfg.ResolveLockTTL, a.cfg.ResolveLockWait)))
	}
	if a.cfg.ResolveTransactional {
		opts = append(opts, identity.WithTransactor(a.store))
	}

	a.logger.WithFields(map[string]any{
		"store":         a.cfg.StoreDriver,
		"lock_mode":     a.cfg.ResolveLockMode,
		"transactional": a.cfg.ResolveTransactional,
		"observers":     len(observers),
	}).Info("Resolver ready")

	return identity.NewResolver(a.store, a.logger, opts...)
}

// Start connects every configured dependency, retrying with backoff.
func (a *App) Start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

// Stop releases dependencies in reverse start order.
func (a *App) Stop(ctx context.Context) error {
	a.checker.SetReady(false)
	return a.startup.Stop(ctx)
}

// Resolver is nil until Start succeeds.
func (a *App) Resolver() *identity.Resolver {
	return a.resolver
}

// Checker exposes the health checks registered by Start.
func (a *App) Checker() *health.Checker {
	return a.checker
}

// NewServer mounts the identify, contact and health routes on a fresh server.
func (a *App) NewServer() *server.Server {
	srv := server.New(server.Config{
		ServiceName:       a.cfg.AppName,
		Port:              a.cfg.Port,
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
		AllowOrigins:      a.cfg.AllowOrigins,
		AllowMethods:      a.cfg.AllowMethods,
		Tracing:           a.cfg.TracingEnabled,
	}, a.logger)

	a.checker.RegisterRoutes(srv.Echo)
	contactroutes.NewHandler(a.resolver, a.cfg.ResolveTimeout).Register(srv.Echo.Group(""))
	return srv
}

// Run starts the dependencies, then serves HTTP (and the fragment consumer when
// enabled) until ctx is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := a.NewServer()

	var consumer *kafka.Consumer
	if a.cfg.KafkaConsumerEnabled {
		consumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       a.cfg.KafkaBrokers,
			Topic:         a.cfg.KafkaInputTopic,
			ConsumerGroup: a.cfg.KafkaConsumerGroup,
		}, a.logger, kafka.NewFragmentHandler(a.resolver, a.cfg.ResolveTimeout, a.logger))
		if err := consumer.Start(ctx); err != nil {
			a.shutdown(nil, nil)
			return err
		}
	}

	a.checker.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown(srv, consumer)
	})

	return g.Wait()
}

func (a *App) shutdown(srv *server.Server, consumer *kafka.Consumer) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.checker.SetReady(false)

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		a.logger.WithError(err).Warn("Shutdown finished with errors")
		return err
	}
	a.logger.Info("Shutdown complete")
	return nil
}
