package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicbridge/clinicbridge/internal/config"
	"github.com/clinicbridge/clinicbridge/internal/domain/autocheck"
	"github.com/clinicbridge/clinicbridge/internal/domain/catalog"
	"github.com/clinicbridge/clinicbridge/internal/domain/eligibility"
	"github.com/clinicbridge/clinicbridge/internal/domain/history"
	"github.com/clinicbridge/clinicbridge/internal/domain/orders"
	"github.com/clinicbridge/clinicbridge/internal/domain/patient"
	"github.com/clinicbridge/clinicbridge/internal/domain/patientctx"
	"github.com/clinicbridge/clinicbridge/internal/domain/planmapping"
	"github.com/clinicbridge/clinicbridge/internal/domain/tpaconfig"
	"github.com/clinicbridge/clinicbridge/internal/platform/auth"
	"github.com/clinicbridge/clinicbridge/internal/platform/kv"
	"github.com/clinicbridge/clinicbridge/internal/platform/middleware"
	"github.com/clinicbridge/clinicbridge/internal/platform/tasks"
	"github.com/clinicbridge/clinicbridge/internal/upstream/lifetrenz"
	"github.com/clinicbridge/clinicbridge/internal/upstream/mantys"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicbridge",
		Short: "Clinic operations API bridging the HIS and the eligibility engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(autocheckCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func autocheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autocheck",
		Short: "Run eligibility checks for today's appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			continuous, _ := cmd.Flags().GetBool("continuous")
			return runAutoCheck(continuous)
		},
	}
	cmd.Flags().Bool("continuous", false, "Keep polling for new appointments until interrupted")
	return cmd
}

// services bundles everything built on top of the Redis client and the two
// upstream HTTP clients, shared between the server and the autocheck worker.
type services struct {
	tpaSvc     *tpaconfig.Service
	planSvc    *planmapping.Service
	catalogSvc *catalog.Service
	histSvc    *history.Service
	ctxSvc     *patientctx.Service
	patientSvc *patient.Service
	eligSvc    *eligibility.Service
	ordersSvc  *orders.Service

	his    *lifetrenz.Client
	redis  *redis.Client
	runner *tasks.Runner
}

func buildServices(ctx context.Context, cfg *config.Config, logger zerolog.Logger, runner *tasks.Runner) (*services, error) {
	client, err := kv.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}
	his := lifetrenz.NewClient(cfg.LifetrenzBaseURL, cfg.LifetrenzAPIKey, logger, lifetrenz.WithHTTPClient(httpClient))
	mantysClient := mantys.NewClient(cfg.MantysBaseURL, cfg.MantysAPIKey, logger, mantys.WithHTTPClient(httpClient))

	tpaSvc := tpaconfig.NewService(tpaconfig.NewRedisRepository(client), his, cfg.CustomerSiteID, logger)
	planSvc := planmapping.NewService(planmapping.NewRedisRepository(client), logger)
	catalogSvc := catalog.NewService(catalog.NewRedisRepository(client))

	histRepo := history.NewRedisRepository(client)
	histSvc := history.NewService(histRepo, histRepo, logger)
	ctxSvc := patientctx.NewService(patientctx.NewRedisRepository(client), runner, logger)
	patientSvc := patient.NewService(his, ctxSvc, logger)
	eligSvc := eligibility.NewService(mantysClient, histSvc, logger)
	ordersSvc := orders.NewService(his, ctxSvc, tpaSvc, cfg.CustomerSiteID, cfg.CustomerID, logger)

	return &services{
		tpaSvc:     tpaSvc,
		planSvc:    planSvc,
		catalogSvc: catalogSvc,
		histSvc:    histSvc,
		ctxSvc:     ctxSvc,
		patientSvc: patientSvc,
		eligSvc:    eligSvc,
		ordersSvc:  ordersSvc,
		his:        his,
		redis:      client,
		runner:     runner,
	}, nil
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	runner := tasks.NewRunner(ctx, logger, 4, 256)

	svcs, err := buildServices(ctx, cfg, logger, runner)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	logger.Info().Msg("connected to redis")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	switch cfg.ResolvedAuthMode() {
	case "development":
		e.Use(auth.DevMiddleware())
	default:
		e.Use(auth.Middleware(auth.Config{
			SigningKey: []byte(cfg.AuthSecret),
			Issuer:     "clinicbridge",
			Audience:   "clinicbridge-api",
		}))
	}

	// API groups
	api := e.Group("/api/v1")
	configGroup := api.Group("/clinic-config")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	// Handlers
	tpaconfig.NewHandler(svcs.tpaSvc).RegisterRoutes(configGroup)
	planmapping.NewHandler(svcs.planSvc).RegisterRoutes(configGroup)
	catalog.NewHandler(svcs.catalogSvc).RegisterRoutes(configGroup)
	history.NewHandler(svcs.histSvc, svcs.eligSvc, logger).RegisterRoutes(api)
	patientctx.NewHandler(svcs.ctxSvc).RegisterRoutes(api)
	patient.NewHandler(svcs.patientSvc).RegisterRoutes(api)
	eligibility.NewHandler(svcs.eligSvc).RegisterRoutes(api)
	orders.NewHandler(svcs.ordersSvc).RegisterRoutes(api)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/redis", kv.HealthHandler(svcs.redis))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runner.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("task runner drain failed")
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runAutoCheck(continuous bool) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := tasks.NewRunner(ctx, logger, 4, 256)
	svcs, err := buildServices(ctx, cfg, logger, runner)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	tracker := autocheck.NewRedisTracker(svcs.redis)
	proc := autocheck.NewProcessor(svcs.his, svcs.eligSvc, svcs.tpaSvc, tracker, cfg.ClinicID, cfg.CustomerSiteID, logger)

	if continuous {
		logger.Info().Dur("interval", cfg.AutoCheckInterval).Msg("starting continuous auto-check")
		return proc.RunContinuous(ctx, cfg.AutoCheckInterval)
	}

	metrics, err := proc.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Int("fetched", metrics.Fetched).
		Int("created", metrics.ChecksCreated).
		Int("errors", metrics.Errors).
		Msg("auto-check run finished")
	return nil
}
