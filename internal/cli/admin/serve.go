package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/vectorgate/internal/api/handlers"
	"github.com/cloo-solutions/vectorgate/internal/config"
	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/cloo-solutions/vectorgate/internal/jobs"
	"github.com/cloo-solutions/vectorgate/internal/openai"
	"github.com/cloo-solutions/vectorgate/internal/repository"
	"github.com/cloo-solutions/vectorgate/internal/server"
	"github.com/cloo-solutions/vectorgate/internal/service"
	"github.com/cloo-solutions/vectorgate/internal/storage"
	"github.com/cloo-solutions/vectorgate/internal/telemetry"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the vectorgate API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Telemetry is opt-in via SENTRY_DSN.
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Sample 10% of traces in production, everything in development.
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	recordRepo := repository.NewVectorRecordRepository(pool)
	documentRepo := repository.NewDocumentRepository(pool)
	accessRepo := repository.NewAccessRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(apiKeyRepo, uuidGen)

	if cfg.InitAPIKey != "" {
		if err := bootstrapInitialAPIKey(ctx, cfg, authSvc); err != nil {
			return fmt.Errorf("failed to bootstrap initial API key: %w", err)
		}
	}

	var s3Client *storage.S3Client
	if cfg.HasS3() {
		s3Config := storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		}
		client, err := storage.NewS3Client(ctx, s3Config)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		s3Client = client
	}

	var embeddingClient service.EmbeddingClient
	if cfg.HasOpenAI() {
		embeddingClient = openai.NewClient(cfg.OpenAIAPIKey)
	}

	accessSvc := service.NewAccessService(accessRepo)
	lifecycleSvc := service.NewLifecycleService(recordRepo)

	var ingestionSvc handlers.IngestionRunner
	var ingestionWorker *jobs.Worker
	if s3Client != nil && embeddingClient != nil {
		svc := service.NewIngestionService(s3Client, embeddingClient, recordRepo).
			WithProgressSink(documentRepo)
		ingestionSvc = svc

		processor := jobs.NewIngestionWorker(documentRepo, svc)
		ingestionWorker = jobs.NewWorker(processor, cfg.WorkerPollInterval)
		go ingestionWorker.Start(ctx)
		log.Println("ingestion worker started")
	} else {
		ingestionSvc = &NoOpIngestionService{}
	}

	var querySvc handlers.QueryRunner
	if embeddingClient != nil {
		querySvc = service.NewQueryService(accessSvc, embeddingClient, recordRepo, cfg.EmbeddingModel)
	} else {
		querySvc = &NoOpQueryService{}
	}

	ingestHandler := handlers.NewIngestHandler(ingestionSvc, accessSvc, documentRepo)
	if s3Client != nil {
		ingestHandler = ingestHandler.WithSourceChecker(s3Client)
	}

	routerCfg := server.RouterConfig{
		AuthValidator:  authSvc,
		IngestHandler:  ingestHandler,
		QueryHandler:   handlers.NewQueryHandler(querySvc),
		AccessHandler:  handlers.NewAccessHandler(accessSvc),
		VectorsHandler: handlers.NewVectorsHandler(lifecycleSvc),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if ingestionWorker != nil {
		ingestionWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// NoOpIngestionService rejects ingestion when S3 or the embedding provider
// is not configured. Async enqueueing still works; documents stay pending
// until a fully configured instance picks them up.
type NoOpIngestionService struct{}

func (s *NoOpIngestionService) Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error) {
	return nil, fmt.Errorf("ingestion not configured: S3_ENDPOINT and OPENAI_API_KEY required")
}

type NoOpQueryService struct{}

func (s *NoOpQueryService) Query(ctx context.Context, userID, query string, topK int) ([]domain.Candidate, error) {
	return nil, fmt.Errorf("query not configured: OPENAI_API_KEY required")
}

func bootstrapInitialAPIKey(ctx context.Context, cfg *config.Config, authSvc *service.AuthService) error {
	if !service.IsValidAPIToken(cfg.InitAPIKey) {
		return fmt.Errorf("invalid VECTORGATE_INIT_API_KEY format (expected 'vg_<64 hex chars>')")
	}

	existingKey, err := authSvc.GetAPIKeyByToken(ctx, cfg.InitAPIKey)
	if err == nil && existingKey != nil {
		log.Printf("bootstrap: API key already exists (id: %s)", existingKey.ID)
		return nil
	}

	if err := authSvc.CreateAPIKeyWithToken(ctx, "bootstrap", cfg.InitAPIKey); err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	log.Printf("bootstrap: created API key")

	return nil
}

func runMigrations(databaseURL string) error {
	// golang-migrate wants a database/sql handle, not a pgx pool.
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && upErr != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	switch {
	case err == migrate.ErrNilVersion:
		log.Println("migrations: database is up to date (no migrations applied)")
	case err != nil:
		return fmt.Errorf("failed to get migration version: %w", err)
	case dirty:
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	case upErr == migrate.ErrNoChange:
		log.Printf("migrations: database is up to date (version %d)", version)
	default:
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
