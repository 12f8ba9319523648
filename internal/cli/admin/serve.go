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

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	openaisdk "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/doctalk-ai/doctalk/internal/api/handlers"
	"github.com/doctalk-ai/doctalk/internal/config"
	"github.com/doctalk-ai/doctalk/internal/jobs"
	"github.com/doctalk-ai/doctalk/internal/openai"
	"github.com/doctalk-ai/doctalk/internal/realtime"
	"github.com/doctalk-ai/doctalk/internal/repository"
	"github.com/doctalk-ai/doctalk/internal/server"
	"github.com/doctalk-ai/doctalk/internal/service"
	"github.com/doctalk-ai/doctalk/internal/storage"
	"github.com/doctalk-ai/doctalk/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the doctalk API server and the ingestion worker",
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
	if !cfg.HasOpenAI() {
		return fmt.Errorf("DOCTALK_OPENAI_API_KEY is required: ingestion and chat need an embedding provider")
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

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

	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	jobRepo := repository.NewIngestionJobRepository(pool)
	leaseRepo := repository.NewLeaseRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	vectorIndex := repository.NewPgVectorIndex(pool)
	txRunner := repository.NewTxRunner(pool)

	var blobs service.BlobStore
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		blobs = s3Client
	} else {
		log.Println("S3 not configured, storing uploads in Postgres")
		blobs = repository.NewBlobRepository(pool)
	}

	aiClient := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      openai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		CompletionModel:     cfg.CompletionModel,
	})

	uuidGen := &service.DefaultUUIDGenerator{}

	ingestSvc := service.NewIngestService(
		docRepo, chunkRepo, jobRepo, leaseRepo, blobs,
		aiClient, vectorIndex, txRunner, uuidGen,
		openai.IsTransient, service.DefaultIngestServiceConfig(),
	)
	docSvc := service.NewDocumentService(docRepo, chunkRepo, blobs, vectorIndex, ingestSvc.Namespace())
	authSvc := service.NewAuthService(userRepo, tokenRepo, uuidGen)

	hub := realtime.NewHub()
	chatSvc := service.NewChatService(sessionRepo, messageRepo, hub, uuidGen)
	queryLogRepo := repository.NewQueryLogRepository(pool)
	retrievalSvc := service.NewRetrievalServiceWithLog(aiClient, vectorIndex, queryLogRepo, service.RetrievalConfig{
		TopK:           cfg.RetrievalTopK,
		ScoreThreshold: cfg.ScoreThreshold,
	})
	generationSvc := service.NewGenerationService(
		chatSvc, retrievalSvc, &CompletionAdapter{client: aiClient}, openai.IsTransient,
		service.GenerationConfig{
			HistoryTurns:      cfg.HistoryTurns,
			TopK:              cfg.RetrievalTopK,
			ScoreThreshold:    cfg.ScoreThreshold,
			CompletionTimeout: time.Duration(cfg.CompletionTimeoutS) * time.Second,
			Retry:             service.DefaultRetryConfig(),
		},
	)

	ingestProcessor, err := jobs.NewIngestWorker(jobRepo, ingestSvc, cfg.WorkerCount)
	if err != nil {
		return fmt.Errorf("failed to create ingestion worker: %w", err)
	}
	defer ingestProcessor.Close()

	worker := jobs.NewWorker(ingestProcessor, time.Duration(cfg.PollIntervalSecs)*time.Second)
	go worker.Start(ctx)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   authSvc,
		DocumentHandler: handlers.NewDocumentHandler(ingestSvc, docSvc),
		ChatHandler:     handlers.NewChatHandler(chatSvc, generationSvc),
		WSHandler:       realtime.NewWSHandler(hub, authSvc, chatSvc),
	})

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

	worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

type chatCompleter interface {
	Complete(ctx context.Context, messages []openaisdk.ChatCompletionMessage) (string, error)
}

// CompletionAdapter translates prompt messages onto the vendor chat
// message type. Roles pass through unchanged.
type CompletionAdapter struct {
	client chatCompleter
}

func (a *CompletionAdapter) Complete(ctx context.Context, messages []service.PromptMessage) (string, error) {
	converted := make([]openaisdk.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openaisdk.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return a.client.Complete(ctx, converted)
}

func runMigrations(databaseURL string) error {
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

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
