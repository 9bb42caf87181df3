package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/njprem/ExcelChat_BackEnd/internal/config"
	"github.com/njprem/ExcelChat_BackEnd/internal/logging"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/memory"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/minio"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/postgres"
	"github.com/njprem/ExcelChat_BackEnd/internal/service"
	"github.com/njprem/ExcelChat_BackEnd/internal/transport/backendapi"
	transport "github.com/njprem/ExcelChat_BackEnd/internal/transport/http"
	"github.com/njprem/ExcelChat_BackEnd/internal/util"
)

func main() {
	cfg := config.Load()

	closeLogs, err := logging.Setup(cfg.LogstashTCPAddr, "excelchat-api")
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientCfg := backendapi.Config{
		BaseURL:   cfg.ETLBaseURL,
		Token:     cfg.ETLToken,
		Timeout:   cfg.ETLTimeout,
		UserAgent: "excelchat-api",
	}
	etl := backendapi.NewETLClient(clientCfg)
	clientCfg.BaseURL = cfg.ChatBaseURL
	engine := backendapi.NewChatClient(clientCfg)

	staging := stagingStorage(ctx, cfg)

	var (
		chatRepo ports.ChatRepository = memory.NewChatRepository()
		settings ports.KeyValueStore  = memory.NewKeyValueStore()
	)
	if cfg.DatabaseURL != "" {
		db := openDatabase(cfg)
		defer db.Close()
		chatRepo = postgres.NewChatRepo(db)
		settings = postgres.NewSettingsRepo(db)
	} else {
		log.Printf("DATABASE_URL not set, chat history and settings are kept in memory")
	}

	scheduler := util.NewScheduler()
	managers := service.NewManagerRegistry(etl, scheduler, service.FileManagerConfig{
		PollInitialDelay: cfg.PollInitialDelay,
		PollInterval:     cfg.PollInterval,
		PollErrorRetries: cfg.PollErrorRetries,
	}, cfg.ManagerMaxUsers, cfg.ManagerIdleTTL)
	defer managers.Close()

	wizards := service.NewWizardRegistry(etl, staging, scheduler, service.WizardConfig{
		Bucket:             cfg.MinIOBucketStaging,
		AdvanceDelay:       cfg.WizardAdvanceDelay,
		MaxFileBytes:       cfg.UploadMaxBytes,
		AllowedExtensions:  cfg.UploadAllowedExtensions,
		SupportedCountries: cfg.SupportedCountries,
	}, cfg.WizardMaxSessions, cfg.WizardSessionTTL, managers.AddFile)
	defer wizards.Close()

	chat := service.NewChatOrchestrator(engine, chatRepo, service.ChatConfig{
		MinQuestionLength: cfg.ChatMinQuestionLength,
	})

	var tokens *util.JWTManager
	if cfg.JWTSecret != "" {
		tokens = util.NewJWTManager(cfg.JWTSecret, cfg.JWTAudience, time.Hour)
	} else {
		log.Printf("SUPABASE_JWT_SECRET not set, requests run as %q", transport.AnonymousUserID)
	}

	e, api := transport.NewRouter(transport.RouterConfig{
		AllowOrigins:   cfg.AllowOrigins,
		MaxUploadBytes: cfg.UploadMaxBytes,
		Auth:           transport.RequireAuth(tokens),
		Backend:        etl,
	})
	e.Server.ReadHeaderTimeout = 10 * time.Second
	transport.RegisterSwagger(e, cfg.SwaggerSpec)
	transport.RegisterSystem(api, etl)
	transport.RegisterWizards(api, wizards, staging, cfg.MinIOBucketStaging)
	transport.RegisterFiles(api, managers)
	transport.RegisterChat(api, chat, cfg.ChatRateLimit)
	transport.RegisterSettings(api, settings)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func stagingStorage(ctx context.Context, cfg config.Config) ports.ObjectStorage {
	if cfg.MinIOEndpoint == "" {
		log.Printf("MINIO_ENDPOINT not set, staged uploads are kept in memory")
		return memory.NewStorage()
	}
	client, err := minio.NewClient(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL)
	if err != nil {
		log.Fatalf("minio: %v", err)
	}
	storage := minio.NewStorage(client)
	if err := storage.EnsureBucket(ctx, cfg.MinIOBucketStaging); err != nil {
		log.Fatalf("minio: %v", err)
	}
	return storage
}

func openDatabase(cfg config.Config) *sqlx.DB {
	db, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if cfg.DatabaseMigrate {
		if err := postgres.Migrate(db); err != nil {
			log.Fatalf("database: %v", err)
		}
	}
	return db
}
