package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vairify/vaicheck-server-go/internal/config"
	"github.com/vairify/vaicheck-server-go/internal/database"
	"github.com/vairify/vaicheck-server-go/internal/handler"
	"github.com/vairify/vaicheck-server-go/internal/jobs"
	"github.com/vairify/vaicheck-server-go/internal/middleware"
	"github.com/vairify/vaicheck-server-go/internal/oracle"
	"github.com/vairify/vaicheck-server-go/internal/redis"
	"github.com/vairify/vaicheck-server-go/internal/repository"
	"github.com/vairify/vaicheck-server-go/internal/service"
	"github.com/vairify/vaicheck-server-go/internal/telemetry"
	"github.com/vairify/vaicheck-server-go/internal/util"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	environment := "development"
	if isProduction {
		environment = "production"
	}
	metricsProvider, err := telemetry.New(context.Background(), telemetry.Config{
		ServiceName:    "vaicheck-server",
		ServiceVersion: os.Getenv("FLY_IMAGE_REF"),
		Environment:    environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		ExportInterval: config.MetricsExportInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	qrSecret := cfg.QRSigningSecret
	if qrSecret == "" {
		qrSecret, err = util.GenerateToken()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to generate QR signing secret")
		}
		log.Warn().Msg("QR_SIGNING_SECRET is empty: using an ephemeral secret, QR payloads will not survive a restart")
	}
	qrCodec, err := service.NewQRCodec(qrSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build QR codec")
	}

	sessionRepo := repository.NewSessionRepository(db.DB)
	encounterRepo := repository.NewEncounterRepository(db.DB)
	identityRepo := repository.NewIdentityRepository(db.DB)

	oracleClient := oracle.NewClient(cfg.OracleURL, cfg.OracleAPIKey, cfg.OracleTimeout(), cfg.OracleRequestsPerSecond)

	sessionService := service.NewSessionService(
		sessionRepo, encounterRepo, identityRepo, oracleClient, qrCodec,
		service.Options{QRTTL: cfg.QRTTL(), MaxAttempts: cfg.MaxVerificationAttempts},
	)

	participantAuth := middleware.NewParticipantAuth(cfg.JWTSecret)
	windowLimiter := redis.NewRateLimiter(redisClient.Client)
	joinGuard := middleware.NewIPRateLimit(windowLimiter, cfg.JoinRateLimitPerMin, config.SensitiveRateLimitWindow, "sensitive")
	statusLimit := middleware.NewParticipantRateLimit(
		middleware.NewRateLimiter(config.SensitiveRateLimitWindow), cfg.StatusRateLimitPerMin,
	)
	reviewerAttempts := middleware.NewReviewerAttemptLimiter()
	reviewerAuth := middleware.NewReviewerAuth(cfg.ReviewerTokenHash)
	securityHeaders := middleware.NewSecurityHeaders(isProduction)

	sessionHandler := handler.NewSessionHandler(sessionService, joinGuard.Handler, statusLimit.Handler)
	encounterHandler := handler.NewEncounterHandler(sessionService)
	reviewHandler := handler.NewReviewHandler(sessionService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(securityHeaders.Handler)

	r.Get("/health", handler.Health(map[string]handler.Pinger{
		"database": db,
		"redis": handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(participantAuth.Handler)
			r.Mount("/sessions", sessionHandler.Routes())
			r.Mount("/encounters", encounterHandler.Routes())
		})

		r.Group(func(r chi.Router) {
			r.Use(reviewerAttempts.Handler)
			r.Use(reviewerAuth.Handler)
			r.Mount("/reviews", reviewHandler.Routes())
		})
	})

	cleanupJob := jobs.NewCleanupJob(sessionRepo, cfg.QRTTL(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := metricsProvider.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush metrics")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
