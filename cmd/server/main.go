package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/notifar/notifar/internal/archival"
	"github.com/notifar/notifar/internal/broker"
	"github.com/notifar/notifar/internal/config"
	"github.com/notifar/notifar/internal/dialect"
	"github.com/notifar/notifar/internal/handlers"
	"github.com/notifar/notifar/internal/middleware"
	"github.com/notifar/notifar/internal/migration"
	"github.com/notifar/notifar/internal/models"
	"github.com/notifar/notifar/internal/notification"
	"github.com/notifar/notifar/internal/policy"
	"github.com/notifar/notifar/internal/push"
	"github.com/notifar/notifar/internal/repository"
	"github.com/notifar/notifar/internal/routes"
	"github.com/notifar/notifar/internal/temporal"
	"github.com/notifar/notifar/internal/temporal/activities"
	"github.com/notifar/notifar/internal/temporal/workflows"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	_ "modernc.org/sqlite" // SQLite driver
)

type application struct {
	config         *config.Config
	live           *repository.DBContext
	archive        repository.ArchiveContexts
	temporalClient tc.Client
	logger         zerolog.Logger
	notifications  notification.Service
	resolver       *policy.Resolver
	broker         *broker.Broker
	engine         *archival.Engine
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	temporalLogger := temporal.NewTemporalAdapter(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Open the live store and the archive store. They may point at the same
	// server or at entirely different engines.
	live := openDatabase(cfg.LiveDatabase, logger)
	defer live.Close()

	archiveDst := live
	if cfg.ArchiveDatabase.URL != cfg.LiveDatabase.URL {
		archiveDst = openDatabase(cfg.ArchiveDatabase, logger)
		defer archiveDst.Close()
	}
	archiveCtxs := repository.ArchiveContexts{Source: live, Destination: archiveDst}

	// Run database migrations.
	if err := migration.RunLive(live.DB().DB, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate live database")
	}
	if err := migration.RunArchive(archiveDst.DB().DB, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate archive database")
	}

	// Wire repositories and domain services.
	notificationRepo := repository.NewNotificationRepository(live.Dialect())
	archiveRepo := repository.NewArchiveRepository(live.Dialect(), archiveDst.Dialect())
	metadataRepo := repository.NewMetadataRepository(live.Dialect())
	userRepo := repository.NewUserRepository(live.Dialect())

	opCodes := policy.NewStaticOperationCodes(cfg.OperationCodes)
	resolver := policy.NewResolver(live, metadataRepo, opCodes, logger)

	deliveryBroker := broker.New(logger)
	defer deliveryBroker.Close()

	notificationService := notification.NewService(live, archiveCtxs, notificationRepo, archiveRepo, userRepo, resolver, deliveryBroker, logger)
	engine := archival.NewEngine(archiveCtxs, archiveRepo, resolver, purgeHorizon(cfg.Archival), logger)

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		Logger: temporalLogger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()

	// Create the application instance.
	app := &application{
		config:         cfg,
		live:           live,
		archive:        archiveCtxs,
		temporalClient: temporalClient,
		logger:         logger,
		notifications:  notificationService,
		resolver:       resolver,
		broker:         deliveryBroker,
		engine:         engine,
	}

	// Start the Temporal worker in a separate goroutine.
	temporalWorker := app.startTemporalWorker(logger)

	// Register the recurring archival and purge schedules.
	app.ensureSchedules(logger)

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, temporalWorker, logger)

	logger.Info().Msg("Application terminated.")
}

func openDatabase(dbCfg config.DatabaseConfig, logger zerolog.Logger) *repository.DBContext {
	d, err := dialectForConfig(dbCfg)
	if err != nil {
		logger.Fatal().Err(err).Str("dialect", dbCfg.Dialect).Msg("Unknown database dialect")
	}
	dbctx, err := repository.Connect(dbCfg.Driver, dbCfg.URL, d)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	return dbctx
}

func dialectForConfig(dbCfg config.DatabaseConfig) (dialect.Dialect, error) {
	name := dbCfg.Dialect
	if name == "" {
		name = dbCfg.Driver
	}
	return dialect.ForName(name)
}

func purgeHorizon(cfg config.ArchivalConfig) models.ArchivePeriod {
	if cfg.PurgeHorizonValue <= 0 {
		return archival.DefaultPurgeHorizon
	}
	period := models.ArchivePeriod{
		Value: cfg.PurgeHorizonValue,
		Unit:  models.ArchiveUnit(strings.ToUpper(cfg.PurgeHorizonUnit)),
	}
	if !period.Valid() {
		return archival.DefaultPurgeHorizon
	}
	return period
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	userRepo := repository.NewUserRepository(app.live.Dialect())

	authHandler := handlers.NewAuthHandler(app.live, userRepo, app.config.JWTSecret, logger)
	notificationHandler := handlers.NewNotificationHandler(app.notifications, logger)
	configHandler := handlers.NewConfigHandler(app.resolver, logger)
	pushHandler := push.NewHandler(app.broker, logger)

	return routes.NewRouter(authHandler, notificationHandler, configHandler, pushHandler)
}

func (app *application) startTemporalWorker(logger zerolog.Logger) worker.Worker {
	activityImpl := &activities.Activities{
		Engine:     app.engine,
		TenantRepo: repository.NewTenantRepository(app.live.Dialect()),
		Live:       app.live,
	}

	w := worker.New(app.temporalClient, temporal.TaskQueueName, worker.Options{})

	w.RegisterWorkflow(workflows.ArchivalWorkflow)
	w.RegisterWorkflow(workflows.PurgeArchiveWorkflow)
	w.RegisterActivity(activityImpl)

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return w
}

// ensureSchedules registers the recurring archival and purge schedules.
// Re-creating an existing schedule is not an error worth dying over.
func (app *application) ensureSchedules(logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	schedules := app.temporalClient.ScheduleClient()

	_, err := schedules.Create(ctx, tc.ScheduleOptions{
		ID: temporal.ArchivalScheduleID,
		Spec: tc.ScheduleSpec{
			Intervals: []tc.ScheduleIntervalSpec{{Every: app.config.Archival.Interval}},
		},
		Action: &tc.ScheduleWorkflowAction{
			ID:        temporal.ArchivalWorkflowIDPrefix + "scheduled",
			Workflow:  workflows.ArchivalWorkflow,
			TaskQueue: temporal.TaskQueueName,
		},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Archival schedule not created; it may already exist")
	}

	_, err = schedules.Create(ctx, tc.ScheduleOptions{
		ID: temporal.PurgeScheduleID,
		Spec: tc.ScheduleSpec{
			Intervals: []tc.ScheduleIntervalSpec{{Every: app.config.Archival.PurgeInterval}},
		},
		Action: &tc.ScheduleWorkflowAction{
			ID:        temporal.PurgeWorkflowIDPrefix + "scheduled",
			Workflow:  workflows.PurgeArchiveWorkflow,
			TaskQueue: temporal.TaskQueueName,
		},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Purge schedule not created; it may already exist")
	}
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker worker.Worker, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the Temporal worker.
	logger.Info().Msg("Stopping Temporal worker...")
	temporalWorker.Stop()
	logger.Info().Msg("Temporal worker stopped.")
}
