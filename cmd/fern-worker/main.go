package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	aliasrepo "github.com/Ramsey-B/fern/internal/repositories/alias"
	entityrepo "github.com/Ramsey-B/fern/internal/repositories/entity"
	entitytyperepo "github.com/Ramsey-B/fern/internal/repositories/entitytype"
	historyrepo "github.com/Ramsey-B/fern/internal/repositories/mergehistory"
	relationshiprepo "github.com/Ramsey-B/fern/internal/repositories/relationship"
	reviewrepo "github.com/Ramsey-B/fern/internal/repositories/reviewqueue"
	"github.com/Ramsey-B/fern/pkg/blocking"
	"github.com/Ramsey-B/fern/pkg/consolidation"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/decision"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/merge"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/scoring"
	"github.com/Ramsey-B/fern/pkg/tenant"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		fmt.Printf("Failed to read config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		Endpoint:    cfg.TracingEndpoint,
		Enabled:     cfg.TracingEnabled,
	})
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down tracing", zap.Error(err))
		}
	}()

	db, err := database.Connect(ctx, database.ConnectConfig{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		User:            cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, db, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaEventTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	defer producer.Close()

	emitter := events.NewEmitter(producer, logger)

	entities := entityrepo.NewRepository(db, logger)
	relationships := relationshiprepo.NewRepository(db, logger)
	aliases := aliasrepo.NewRepository(db, logger)
	history := historyrepo.NewRepository(db, logger)
	reviews := reviewrepo.NewRepository(db, logger)
	entityTypes := entitytyperepo.NewRepository(db, logger)

	schemas := schema.NewRegistry(entityTypes, logger)
	mergeService := merge.NewService(entities, relationships, aliases, history, schemas, emitter, logger)

	blocker := blocking.NewEngine(entities, blocking.Config{
		MaxBlockSize:    cfg.BlockingMaxBlockSize,
		MinPrefixLength: cfg.BlockingMinPrefixLength,
		Strategies:      blocking.DefaultConfig().Strategies,
	}, logger)

	scorer := scoring.NewScorer(scoring.DefaultConfig())

	router, err := decision.NewRouter(decision.Thresholds{
		RejectBelow: cfg.RejectBelowThreshold,
		Review:      cfg.ReviewThreshold,
		AutoMerge:   cfg.AutoMergeThreshold,
	})
	if err != nil {
		logger.Fatal("Invalid decision thresholds", zap.Error(err))
	}

	// Each merge attempt runs inside a savepoint so a failed merge rolls back
	// cleanly while the rest of the run's transaction commits.
	merger := consolidation.NewSavepointMerger(db, mergeService)

	orchestrator := consolidation.NewOrchestrator(entities, blocker, scorer, router, merger, reviews, emitter, logger)

	worker := &worker{
		db:           db,
		orchestrator: orchestrator,
		validate:     validator.New(),
		logger:       logger,
	}

	if !cfg.KafkaConsumerEnabled {
		logger.Info("Kafka consumer disabled, nothing to do")
		return
	}

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaJobTopic,
		ConsumerGroup: cfg.KafkaConsumerGroup,
	}, logger, worker.handleJob)

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal("Failed to start consumer", zap.Error(err))
	}

	logger.Info("Consolidation worker started",
		zap.String("job_topic", cfg.KafkaJobTopic),
		zap.String("event_topic", cfg.KafkaEventTopic))

	<-ctx.Done()
	logger.Info("Shutting down")

	if err := consumer.Stop(); err != nil {
		logger.Error("Failed to stop consumer", zap.Error(err))
	}
}

// worker runs one consolidation job per Kafka message. Each run owns a single
// database transaction so a failed run leaves no partial merges behind.
type worker struct {
	db           database.DB
	orchestrator *consolidation.Orchestrator
	validate     *validator.Validate
	logger       *zap.Logger
}

func (w *worker) handleJob(ctx context.Context, msg *kafka.IncomingMessage) error {
	req := msg.JobRequest
	if req == nil {
		return fmt.Errorf("message has no job request")
	}
	if err := w.validate.Struct(req); err != nil {
		// Malformed requests are logged and dropped, redelivery cannot fix them.
		w.logger.Error("Invalid consolidation job request", zap.String("job_id", req.JobID), zap.Error(err))
		return nil
	}

	log := w.logger.With(
		zap.String("job_id", req.JobID),
		zap.String("tenant_id", req.TenantID))
	log.Info("Starting consolidation run")

	ctx = tenant.SetTenantID(ctx, req.TenantID)
	if req.RequestedBy != "" {
		ctx = tenant.SetUserID(ctx, req.RequestedBy)
	}

	ctxTx, tx, err := w.db.GetTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	summary, err := w.orchestrator.RunConsolidation(ctxTx, req.TenantID, req.Scope, func(p models.ConsolidationProgress) {
		log.Debug("Consolidation progress",
			zap.Int("processed", p.EntitiesProcessed),
			zap.Int("total", p.EntitiesTotal),
			zap.Int("auto_merged", p.AutoMerged),
			zap.Int("queued_for_review", p.QueuedForReview))
	})
	if err != nil {
		log.Error("Consolidation run failed", zap.Error(err))
		return err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return fmt.Errorf("failed to commit consolidation run: %w", err)
	}

	log.Info("Consolidation run completed",
		zap.Int("entities_processed", summary.EntitiesProcessed),
		zap.Int("candidates_found", summary.CandidatesFound),
		zap.Int("auto_merged", summary.AutoMerged),
		zap.Int("queued_for_review", summary.QueuedForReview),
		zap.Int("entities_skipped", summary.EntitiesSkipped))
	return nil
}

func runMigrations(cfg config.Config, db database.DB, logger *zap.Logger) error {
	instance, ok := db.(*database.DatabaseInstance)
	if !ok {
		return fmt.Errorf("database does not support migrations")
	}

	driver, err := migratepg.WithInstance(instance.DB.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return ms.Migrate(cfg.DatabaseName, driver)
}

func buildLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level

	return zapCfg.Build(zap.Fields(zap.String("app", cfg.AppName)))
}
