package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/leadrail/sitechat-platform/cmd/mainconfig"
	"github.com/leadrail/sitechat-platform/internal/api/router"
	"github.com/leadrail/sitechat-platform/internal/audit"
	"github.com/leadrail/sitechat-platform/internal/chat"
	appconfig "github.com/leadrail/sitechat-platform/internal/config"
	"github.com/leadrail/sitechat-platform/internal/engine"
	"github.com/leadrail/sitechat-platform/internal/fallback"
	"github.com/leadrail/sitechat-platform/internal/handoff"
	"github.com/leadrail/sitechat-platform/internal/notify"
	"github.com/leadrail/sitechat-platform/internal/observability/metrics"
	"github.com/leadrail/sitechat-platform/internal/script"
	"github.com/leadrail/sitechat-platform/internal/session"
	"github.com/leadrail/sitechat-platform/internal/transcript"
	"github.com/leadrail/sitechat-platform/internal/webchat"
	"github.com/leadrail/sitechat-platform/pkg/logging"
)

func main() {
	// Local dev convenience; the file is absent in deployed environments.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting sitechat-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisClient := connectRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	scriptStore := script.NewStore(redisClient)
	resolver := script.NewResolver(scriptStore)
	reporter := engine.NewReportStore(redisClient, cfg.SessionTTL)

	sessions := buildSessionStore(cfg, awsCfg, logger)
	responder := buildResponder(cfg, awsCfg)

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	db := openDatabase(cfg.DatabaseURL, logger)
	transcripts := transcript.NewStore(db)
	trail := audit.NewTrail(db)

	var writer handoff.Writer
	if pool != nil {
		writer = handoff.NewNotifyingWriter(
			handoff.NewPostgresWriter(pool),
			buildEmailSender(cfg, awsCfg, logger),
			cfg.SalesTeamEmail,
			trail,
			logger,
		)
	} else {
		logger.Warn("DATABASE_URL not set, handoff delivery disabled")
	}

	metricsHandler, engineMetrics := setupEngineMetrics()

	eng := engine.New(resolver, sessions, responder, writer, reporter, engineMetrics, logger, engine.Config{
		MaxFollowUps:        cfg.MaxFollowUps,
		IntentThreshold:     cfg.BookingIntentThreshold,
		CollaboratorTimeout: cfg.CollaboratorTimeout,
	})

	routerCfg := &router.Config{
		Logger:              logger,
		ChatHandler:         chat.NewHandler(eng, transcripts, reporter, logger),
		WebchatHandler:      webchat.NewHandler(eng, transcripts, logger),
		ScriptHandler:       script.NewHandler(scriptStore, trail, logger),
		AuditHandler:        audit.NewHandler(trail, logger),
		MetricsHandler:      metricsHandler,
		AdminJWTSecret:      cfg.AdminJWTSecret,
		CORSAllowedOrigins:  cfg.AllowedWidgetOrigins,
		WidgetRatePerSecond: cfg.WidgetRatePerSecond,
		WidgetRateBurst:     cfg.WidgetRateBurst,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TurnTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		pool.Close()
	}
	if db != nil {
		_ = db.Close()
	}

	logger.Info("server stopped")
}

// connectRedis builds the shared Redis client for scripts and reports.
func connectRedis(cfg *appconfig.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// buildSessionStore picks DynamoDB or the in-memory store for dev runs.
func buildSessionStore(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) session.Store {
	if cfg.UseMemorySessions {
		logger.Warn("using in-memory session store, sessions will not survive restarts")
		return session.NewMemoryStore()
	}
	return session.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.SessionsTable, cfg.SessionTTL, logger)
}

// buildResponder wires the generic-question responder. Without a configured
// model a static responder serves the canned apology.
func buildResponder(cfg *appconfig.Config, awsCfg aws.Config) fallback.Responder {
	if cfg.BedrockModelID == "" {
		return &fallback.StaticResponder{}
	}
	return fallback.NewBedrockResponder(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
}

// buildEmailSender picks the handoff notification provider. Returns nil when
// notifications are disabled.
func buildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender == nil {
			return nil
		}
		return sender
	case "ses":
		sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
		if sender == nil {
			return nil
		}
		return sender
	case "stub":
		return notify.NewStubEmailSender(logger)
	default:
		return nil
	}
}

// connectPostgresPool opens the pgx pool used for handoff writes. Returns nil
// when no database is configured.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	return pool
}

// openDatabase opens the database/sql handle shared by transcripts and the
// audit trail. Returns nil when no database is configured; both consumers
// treat that as persistence disabled.
func openDatabase(databaseURL string, logger *logging.Logger) *sql.DB {
	if databaseURL == "" {
		return nil
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return nil
	}
	return db
}

// setupEngineMetrics registers the engine collectors on a dedicated registry.
func setupEngineMetrics() (http.Handler, *metrics.EngineMetrics) {
	registry := prometheus.NewRegistry()
	m := metrics.NewEngineMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), m
}
