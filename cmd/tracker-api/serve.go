package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tracker-api/internal/auth"
	"tracker-api/internal/config"
	"tracker-api/internal/database"
	"tracker-api/internal/http/handler"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/ratelimit"
	"tracker-api/internal/repo"
	"tracker-api/internal/service"
	"tracker-api/internal/simulation"
	"tracker-api/internal/telemetry"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the Tracker API HTTP server with all middlewares and observability`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("skip-migrations", false, "do not apply pending migrations on start")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.OTELServiceName, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	startup := []logger.Field{logger.Module("server"), logger.Action("startup")}
	log.Info(ctx, "starting tracker api", append(startup, zap.String("app_env", cfg.AppEnv))...)

	if skip, _ := cmd.Flags().GetBool("skip-migrations"); !skip {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info(ctx, "migrations completed", startup...)
	}

	var metrics *telemetry.Metrics
	if cfg.TelemetryEnabled() {
		var tracerProvider *sdktrace.TracerProvider
		tracerProvider, err = telemetry.InitTracer(ctx, cfg.OTELServiceName, cfg.OTELExporterEndpoint, cfg.OTELSamplingRatio)
		if err != nil {
			log.Warn(ctx, "failed to initialize tracer, continuing without tracing", append(startup, zap.Error(err))...)
		} else {
			defer shutdownProvider(log, "tracer", tracerProvider.Shutdown)
		}

		var meterProvider *sdkmetric.MeterProvider
		meterProvider, metrics, err = telemetry.InitMetrics(ctx, cfg.OTELServiceName, cfg.OTELExporterEndpoint)
		if err != nil {
			log.Warn(ctx, "failed to initialize metrics, continuing without OTLP metrics", append(startup, zap.Error(err))...)
			metrics = nil
		} else {
			defer shutdownProvider(log, "meter", meterProvider.Shutdown)
		}
	} else {
		log.Info(ctx, "telemetry export disabled", startup...)
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.PoolOptions{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info(ctx, "database and redis connected", startup...)

	resolver, err := buildKeyResolver(cfg)
	if err != nil {
		return err
	}

	users := repo.NewUserRepository(pool)
	projects := repo.NewProjectRepository(pool)
	settings := repo.NewSettingsRepository(pool)
	audit := repo.NewAuditRepo(pool)

	var apiKeys *auth.APIKeyAuthenticator
	if cfg.APIKeysEnabled {
		apiKeys = auth.NewAPIKeyAuthenticator(users)
	}

	recorder := telemetry.NewAuthzRecorder(metrics)
	permResolver := service.NewResolver(users, projects, log)
	guards := service.NewGuards(permResolver, users, recorder, log)
	rank := service.NewRankChecker(permResolver, projects, projects, log)
	provisioner := service.NewRoleProvisioner(projects, settings, log)
	members := service.NewMemberService(projects, guards, rank, provisioner, audit, log)

	simStore := simulation.NewRedisStore(redisClient, cfg.SimulationTTL())

	r := buildRouter(RouterDeps{
		Cfg:         cfg,
		Log:         log,
		Resolver:    resolver,
		APIKeys:     apiKeys,
		RateLimiter: ratelimit.NewRedisRateLimiter(redisClient, ""),
		Recorder:    recorder,
		Metrics:     metrics,
		DB:          pool,
		Redis:       redisClient,
		Permissions: handler.NewPermissionsHandler(guards),
		Members:     handler.NewMemberHandler(members, guards),
		Simulation:  handler.NewSimulationHandler(members, guards, simStore, simulation.NewNavigator(simStore, log)),
		Debug:       handler.NewDebugHandler(cfg.AppEnv, pool, guards),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting http server", append(startup, zap.String("addr", server.Addr))...)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
	}

	log.Info(ctx, "shutdown signal received, starting graceful shutdown", logger.Module("server"), logger.Action("shutdown"))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown error", logger.Module("server"), logger.Action("shutdown"), zap.Error(err))
	}

	log.Info(shutdownCtx, "shutdown complete", logger.Module("server"), logger.Action("shutdown"))
	return nil
}

// buildKeyResolver registers an HS256 validator for every allowed issuer and,
// when a public key is configured, an RS256 validator for the SSO issuer.
func buildKeyResolver(cfg *config.Config) (*auth.KeyResolver, error) {
	keyStore := auth.NewKeyStore()
	clockSkew := time.Duration(cfg.JWTClockSkewSeconds) * time.Second

	issuers := cfg.GetAllowedIssuers()
	if len(issuers) == 0 {
		return nil, fmt.Errorf("JWT_ALLOWED_ISSUERS must contain at least one valid issuer")
	}
	for _, issuer := range issuers {
		if err := keyStore.LoadHS256KeyBase64(issuer, auth.DefaultKeyID, cfg.JWTHS256Secret); err != nil {
			return nil, fmt.Errorf("JWT_HS256_SECRET: %w", err)
		}
	}
	if secret, _ := keyStore.GetHS256Key(issuers[0], auth.DefaultKeyID); len(secret) < 32 {
		return nil, fmt.Errorf("JWT_HS256_SECRET must decode to at least 32 bytes, got %d", len(secret))
	}

	rs256 := cfg.JWTPublicKeyRS256 != ""
	if rs256 {
		if err := keyStore.LoadRS256Key(cfg.JWTRS256Issuer, auth.DefaultKeyID, cfg.JWTPublicKeyRS256); err != nil {
			return nil, fmt.Errorf("JWT_PUBLIC_KEY_RS256: %w", err)
		}
		if !contains(issuers, cfg.JWTRS256Issuer) {
			issuers = append(issuers, cfg.JWTRS256Issuer)
		}
	}

	resolver := auth.NewKeyResolver(issuers, []string{cfg.JWTAudience})
	for _, issuer := range cfg.GetAllowedIssuers() {
		resolver.RegisterValidator(issuer, auth.NewHS256Validator(keyStore, issuer, clockSkew))
	}
	if rs256 {
		resolver.RegisterValidator(cfg.JWTRS256Issuer, auth.NewRS256Validator(keyStore, cfg.JWTRS256Issuer, clockSkew))
	}
	return resolver, nil
}

func shutdownProvider(log *logger.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Error(ctx, "failed to shut down "+name+" provider", logger.Module("server"), logger.Action("shutdown"), zap.Error(err))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
