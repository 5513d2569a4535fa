package cli

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
	"github.com/lvhr/airea/internal/api/handlers"
	"github.com/lvhr/airea/internal/config"
	"github.com/lvhr/airea/internal/jobs"
	"github.com/lvhr/airea/internal/openai"
	"github.com/lvhr/airea/internal/repository"
	"github.com/lvhr/airea/internal/server"
	"github.com/lvhr/airea/internal/service"
	"github.com/lvhr/airea/internal/telemetry"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the AIREA chat server",
		Long:  "Bootstrap the knowledge-base snapshot and start the AIREA API server",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8000", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
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
	if portFlag != "" && portFlag != "8000" {
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

	manager, err := buildSnapshotManager(ctx, cfg)
	if err != nil {
		return err
	}

	// Bootstrap must complete before the listener opens: the process either
	// comes up with a non-empty knowledge base or exits non-zero.
	if err := manager.Bootstrap(ctx); err != nil {
		return fmt.Errorf("snapshot bootstrap failed: %w", err)
	}

	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)

	conversationRepo := repository.NewConversationRepository(pool)
	retrievalLogRepo := repository.NewRetrievalLogRepository(pool)

	retrievalSvc := service.NewRetrievalService(manager, openaiClient, service.RetrievalConfig{
		TopK:           cfg.RetrievalTopK,
		RelevanceFloor: cfg.RelevanceFloor,
	})
	chatSvc := service.NewChatService(
		retrievalSvc,
		service.NewAssembler(service.AssemblerConfig{}),
		openaiClient,
		conversationRepo,
		retrievalLogRepo,
		service.ChatConfig{HistoryTurns: cfg.HistoryTurns},
	)

	router := server.NewRouter(server.RouterConfig{
		APIKey:              cfg.APIKey,
		ChatHandler:         handlers.NewChatHandler(chatSvc),
		HealthHandler:       handlers.NewHealthHandler(manager),
		ConversationHandler: handlers.NewConversationHandler(conversationRepo),
		SnapshotHandler:     handlers.NewSnapshotHandler(manager, manager),
	})

	var refreshWorker *jobs.Worker
	if cfg.RefreshInterval > 0 {
		refreshWorker = jobs.NewWorker(manager, cfg.RefreshInterval)
		go refreshWorker.Start(ctx)
	}

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

	if refreshWorker != nil {
		refreshWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
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
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty migration state at version %d", version)
	}
	log.Printf("migrations applied (version %d)", version)

	return nil
}
