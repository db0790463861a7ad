package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/idgen"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/ratelimit"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/repository"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/routes"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	stdout := logging.Setup(cfg.AppEnv)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB, 5*time.Second)
	slog.SetDefault(slog.New(logging.NewMultiHandler(stdout, pgLogHandler)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	registry := metrics.InitRegistry()

	ids, err := idgen.New(cfg.SnowflakeNode)
	if err != nil {
		slog.Error("id generator init failed", "error", err)
		os.Exit(1)
	}

	// Identity providers
	apple, err := services.NewAppleProvider(services.AppleConfig{
		ClientIDs:  cfg.AppleClientIDs,
		TeamID:     cfg.AppleTeamID,
		KeyID:      cfg.AppleKeyID,
		PrivateKey: cfg.ApplePrivateKey,
		Timeout:    cfg.ProviderTimeout,
	})
	if err != nil {
		slog.Error("apple provider init failed", "provider", "apple", "error", err)
		os.Exit(1)
	}
	kakao := services.NewKakaoProvider(services.KakaoConfig{
		ClientID:     cfg.KakaoClientID,
		ClientSecret: cfg.KakaoClientSecret,
		RedirectURI:  cfg.KakaoRedirectURI,
		AdminKey:     cfg.KakaoAdminKey,
		Timeout:      cfg.ProviderTimeout,
	})
	naver := services.NewNaverProvider(services.NaverConfig{
		ClientID:     cfg.NaverClientID,
		ClientSecret: cfg.NaverClientSecret,
		Timeout:      cfg.ProviderTimeout,
	})

	// Services
	users := repository.NewUserRepository(database.DB)
	tokens := services.NewTokenIssuer(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	vault := services.NewRefreshVault(users, services.DefaultArgon2Params())
	federation := services.NewFederationResolver(users, tokens, vault, ids, cfg.DefaultNickname, cfg.ProviderTimeout, kakao, apple, naver)
	sessions := services.NewSessionService(users, services.NewBcryptHasher(bcrypt.DefaultCost), tokens, vault, federation, ids, cfg.ProviderTimeout)

	// Handlers
	authHandler := handlers.NewAuthHandler(sessions, cfg.RequestTimeout)
	healthHandler := handlers.NewHealthHandler(database.Ping)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    64 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: idgen.RequestID}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Cache-Control", "no-store")
		return c.Next()
	})

	// Shared rate-limit counters; in-memory when Redis is not configured
	var limiterStorage fiber.Storage
	if cfg.RedisURL != "" {
		store, err := ratelimit.NewRedisStorage(cfg.RedisURL, 2*time.Second)
		if err != nil {
			slog.Error("redis unavailable, rate limits fall back to memory", "error", err)
		} else {
			limiterStorage = store
			defer store.Close()
		}
	}

	// Routes
	routes.Setup(app, cfg, registry, limiterStorage, authHandler, healthHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := database.Close(); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
