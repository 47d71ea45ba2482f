package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	_ "github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend/mongodb"
	_ "github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend/postgres"
	"github.com/ekaya-inc/ekaya-datahub/pkg/auth"
	"github.com/ekaya-inc/ekaya-datahub/pkg/cache"
	"github.com/ekaya-inc/ekaya-datahub/pkg/config"
	"github.com/ekaya-inc/ekaya-datahub/pkg/crypto"
	"github.com/ekaya-inc/ekaya-datahub/pkg/federation"
	"github.com/ekaya-inc/ekaya-datahub/pkg/handlers"
	"github.com/ekaya-inc/ekaya-datahub/pkg/logging"
	"github.com/ekaya-inc/ekaya-datahub/pkg/middleware"
	"github.com/ekaya-inc/ekaya-datahub/pkg/repositories"
	"github.com/ekaya-inc/ekaya-datahub/pkg/retry"
	"github.com/ekaya-inc/ekaya-datahub/pkg/services"
	"github.com/ekaya-inc/ekaya-datahub/pkg/storage"
	"github.com/ekaya-inc/ekaya-datahub/pkg/upstream"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck // stderr sync errors are not actionable

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.Int("connections", len(cfg.Connections)),
		zap.Bool("storage", cfg.Storage.Enabled()),
		zap.Bool("redis", cfg.Redis.Enabled()),
		zap.Bool("encryption_key", cfg.EncryptionKey != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Backends. A failed connection is logged and skipped.
	conns := backend.NewConnectionRegistry(logger)
	conns.Connect(ctx, cfg.ConnectionConfigs())
	primary, err := conns.Primary()
	if err != nil {
		logger.Fatal("No backend connection available", zap.Error(err))
	}

	models := federation.NewRegistry(conns, logger)
	projectRepo := repositories.NewProjectRepository(models.Define(repositories.ProjectDefinition()))
	metadataRepo := repositories.NewProjectMetadataRepository(models.Define(repositories.MetadataDefinition()))
	userRepo := repositories.NewUserRepository(models.Define(repositories.UserDefinition(primary.ID)))

	// Credential encryption fails closed without a key.
	var cipher *crypto.CredentialCipher
	if cfg.EncryptionKey != "" {
		cipher, err = crypto.NewCredentialCipher(cfg.EncryptionKey)
		if err != nil {
			logger.Fatal("Invalid DATAHUB_ENCRYPTION_KEY", zap.Error(err))
		}
	} else {
		logger.Warn("DATAHUB_ENCRYPTION_KEY not set; credential features are disabled")
	}

	var store storage.Adapter = storage.Disabled{}
	if cfg.Storage.Enabled() {
		s3, err := storage.NewS3Adapter(ctx, storage.S3Config{
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Endpoint:        cfg.Storage.Endpoint,
			PresignExpiry:   cfg.Storage.PresignExpiry,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to configure object storage", zap.Error(err))
		}
		store = s3
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.Upstream.Retries
	upstreamOpts := []upstream.Option{
		upstream.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout}),
		upstream.WithRetry(retryCfg),
	}
	if cfg.Redis.Enabled() {
		redisStore, err := cache.New(ctx, cache.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			EnableTLS: cfg.Redis.EnableTLS,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			// Caching is an optimization; serve uncached rather than refuse to start.
			logger.Warn("Redis unavailable, upstream responses will not be cached", zap.Error(err))
		} else {
			defer redisStore.Close()
			upstreamOpts = append(upstreamOpts, upstream.WithCache(redisStore, cfg.Upstream.CacheTTL))
		}
	}
	fetcher := upstream.NewClient(logger, upstreamOpts...)

	// Services
	projectService := services.NewProjectService(conns, projectRepo, metadataRepo, userRepo, store, logger)
	memberService := services.NewMemberService(projectRepo, userRepo, logger)
	fileService := services.NewFileService(projectRepo, store, logger)
	credentialService := services.NewCredentialService(projectRepo, metadataRepo, cipher, logger)
	exportService := services.NewExportService(conns, projectRepo, metadataRepo, credentialService, fetcher, logger)

	// Auth
	validator, err := auth.NewJWTValidator(ctx, auth.ValidatorConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSURL:            cfg.Auth.JWKSURL,
		Secret:             cfg.Auth.JWTSecret,
		Issuer:             cfg.Auth.Issuer,
		Audience:           cfg.Auth.Audience,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWT validator", zap.Error(err))
	}
	defer validator.Close()
	if !cfg.Auth.EnableVerification {
		logger.Warn("JWT verification disabled; do not run this configuration in production")
	}
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(validator, logger), logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, conns, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewDatabasesHandler(conns, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewProjectsHandler(projectService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewMembersHandler(memberService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewFilesHandler(fileService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewCredentialsHandler(credentialService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewExportsHandler(exportService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewPublicExportsHandler(exportService, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-datahub",
			zap.String("addr", server.Addr),
			zap.Bool("tls", cfg.TLSCertPath != ""),
			zap.String("version", cfg.Version))
		if cfg.TLSCertPath != "" {
			serverErr <- server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := conns.Close(shutdownCtx); err != nil {
		logger.Error("Failed to close backend connections", zap.Error(err))
	}
}
