// Package server assembles the service: infrastructure dependencies started
// in order with retry, the echo HTTP surface, and the provisioning wiring.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/provisioning"
	fernredis "github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validators"
	"github.com/Ramsey-B/fern/pkg/workflow"
)

// Version is stamped at build time.
var Version = "dev"

// Server owns the service's lifecycle.
type Server struct {
	cfg    *config.Config
	logger ectologger.Logger

	// SpanExporter lets binaries plug in an OTLP exporter; nil keeps spans
	// local.
	SpanExporter sdktrace.SpanExporter

	db       database.DB
	redis    *fernredis.Client
	producer *kafka.Producer
	tracer   *sdktrace.TracerProvider
	echo     *echo.Echo
	checker  *health.Checker
}

// New creates a server from config.
func New(cfg *config.Config, logger ectologger.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// dependency adapts closures to startup.Dependency.
type dependency struct {
	name    string
	needs   []string
	startFn func(ctx context.Context) error
	stopFn  func(ctx context.Context) error
}

func (d *dependency) GetName() string        { return d.name }
func (d *dependency) DependsOn() []string    { return d.needs }
func (d *dependency) Start(ctx context.Context) error { return d.startFn(ctx) }
func (d *dependency) Stop(ctx context.Context) error {
	if d.stopFn == nil {
		return nil
	}
	return d.stopFn(ctx)
}

// Run starts every dependency and blocks until ctx is cancelled, then stops
// them in reverse order.
func (s *Server) Run(ctx context.Context) error {
	boot := startup.New(s.logger, s.cfg.StartupMaxAttempts)

	boot.AddDependency(&dependency{
		name:    "tracing",
		startFn: s.startTracing,
		stopFn: func(ctx context.Context) error {
			if s.tracer == nil {
				return nil
			}
			return s.tracer.Shutdown(ctx)
		},
	})
	boot.AddDependency(&dependency{
		name:    "database",
		startFn: s.startDatabase,
		stopFn: func(context.Context) error {
			if s.db == nil {
				return nil
			}
			return s.db.Close()
		},
	})
	boot.AddDependency(&dependency{
		name:    "redis",
		startFn: s.startRedis,
		stopFn: func(context.Context) error {
			if s.redis == nil {
				return nil
			}
			return s.redis.Close()
		},
	})
	boot.AddDependency(&dependency{
		name:    "kafka",
		startFn: s.startKafka,
		stopFn: func(context.Context) error {
			if s.producer == nil {
				return nil
			}
			return s.producer.Close()
		},
	})
	boot.AddDependency(&dependency{
		name:    "http",
		needs:   []string{"tracing", "database", "redis", "kafka"},
		startFn: s.startHTTP,
		stopFn: func(ctx context.Context) error {
			if s.echo == nil {
				return nil
			}
			return s.echo.Shutdown(ctx)
		},
	})

	if err := boot.Start(ctx); err != nil {
		return err
	}
	if s.checker != nil {
		s.checker.SetReady(true)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return boot.Stop(stopCtx)
}

func (s *Server) startTracing(context.Context) error {
	tp, err := tracing.Setup(s.cfg.AppName, s.SpanExporter)
	if err != nil {
		return err
	}
	s.tracer = tp
	return nil
}

func (s *Server) startDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, database.ConnectConfig{
		Driver:          s.cfg.DatabaseDriver,
		Host:            s.cfg.DatabaseHost,
		Port:            s.cfg.DatabasePort,
		UserName:        s.cfg.DatabaseUserName,
		Password:        s.cfg.DatabasePassword,
		Name:            s.cfg.DatabaseName,
		SSLMode:         s.cfg.DatabaseSSLMode,
		MaxOpenConns:    s.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    s.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: s.cfg.DatabaseConnMaxLifetime,
	}, s.logger)
	if err != nil {
		return err
	}
	s.db = db

	migrations := database.NewMigrationService(s.logger, &database.MigrationConfig{
		MigrationFolderPath: s.cfg.DatabaseMigrationFolderPath,
		Version:             uint(s.cfg.DatabaseMigrationVersion),
		Force:               s.cfg.DatabaseMigrationForce,
		AutoRollback:        s.cfg.DatabaseMigrationAutoRollback,
	})

	instance, ok := db.(*database.DatabaseInstance)
	if !ok {
		return fmt.Errorf("database connection does not expose a migratable instance")
	}
	return migrations.MigrateDB(instance.Sqlx(), s.cfg.DatabaseName)
}

func (s *Server) startRedis(ctx context.Context) error {
	client, err := fernredis.NewClient(fernredis.Config{
		Host:     s.cfg.RedisHost,
		Port:     s.cfg.RedisPort,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
	}, s.logger)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		return err
	}
	s.redis = client
	return nil
}

func (s *Server) startKafka(context.Context) error {
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      strings.Split(s.cfg.KafkaBrokers, ","),
		Topic:        s.cfg.KafkaEventTopic,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		MaxAttempts:  3,
	}, s.logger)
	if err != nil {
		return err
	}
	s.producer = producer
	return nil
}

func (s *Server) startHTTP(context.Context) error {
	engineClient := engine.NewClient(engine.Config{
		BaseURL:        s.cfg.EngineBaseURL,
		RequestTimeout: s.cfg.EngineRequestTimeout,
	}, engine.NewAPIKeyCache(engine.StaticAPIKey(s.cfg.EngineAPIKey), s.cfg.EngineAPIKeyTTL), s.logger)

	httpClient := httpclient.NewClient(httpclient.DefaultConfig(), s.logger)
	registry := validators.NewRegistry(httpClient, s.logger)
	builder := workflow.NewBuilder(expressions.NewEvaluator())

	chatbots := repositories.NewChatbotRepository(s.db, s.logger)
	tenants := repositories.NewTenantRepository(s.db, s.logger)

	timing := provisioning.Timing{
		ActivationBaseDelay:     s.cfg.ActivationRetryBaseDelay,
		WebhookCheckShortDelay:  s.cfg.WebhookCheckShortDelay,
		WebhookCheckMediumDelay: s.cfg.WebhookCheckMediumDelay,
		WebhookCheckLongDelay:   s.cfg.WebhookCheckLongDelay,
		WebhookRepairCyclePause: s.cfg.WebhookRepairCyclePause,
		CompensationTimeout:     s.cfg.CompensationTimeout,
	}

	webhooks := provisioning.NewWebhookReconciler(engineClient, timing, s.logger)
	activator := provisioning.NewActivationRetrier(engineClient, timing, s.logger)
	seeder := provisioning.NewMemorySeeder(s.redis, s.logger)

	orchestrator := provisioning.NewOrchestrator(provisioning.OrchestratorDeps{
		Chatbots:   chatbots,
		Tenants:    tenants,
		Engine:     engineClient,
		Validators: registry,
		Builder:    builder,
		Webhooks:   webhooks,
		Activator:  activator,
		Events:     s.producer,
		Memory:     seeder,
	}, timing, s.logger)
	deprovisioner := provisioning.NewDeprovisioner(chatbots, tenants, engineClient, s.producer, s.logger)
	reconciler := provisioning.NewStateReconciler(chatbots, engineClient, activator, s.producer, s.logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(s.logger)
	e.Server.ReadTimeout = time.Duration(s.cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(s.cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(s.cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = s.cfg.MaxHeaderBytes

	e.Use(otelecho.Middleware(s.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(s.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: s.cfg.AllowOrigins,
		AllowMethods: s.cfg.AllowMethods,
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.checker = health.NewChecker(s.db, s.redis.Redis(), engineClient, Version)

	api := e.Group("/api/v1")
	s.checker.Register(api)

	if s.cfg.AuthIssuerURL != "" {
		api.Use(middleware.Authentication(s.logger, s.cfg.AuthIssuerURL, s.cfg.AuthClientID))
	}

	chatbotHandler := handlers.NewChatbotHandler(chatbots, orchestrator, deprovisioner, reconciler, engineClient, builder, registry)
	chatbotHandler.RegisterRoutes(api)

	s.echo = e

	go func() {
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.logger.Infof("HTTP server listening on %s", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}
