package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"diagramd/internal/http/handlers"
	httpapi "diagramd/internal/http/httpapi"
	"diagramd/internal/infra"
	"diagramd/internal/jobs"
	"diagramd/internal/pipeline"
	"diagramd/internal/providers"
	"diagramd/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	// Providers are constructed up front so a misconfigured provider name
	// fails before any job is accepted.
	vlmProvider, err := providers.CreateVLM(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid vlm provider configuration")
	}
	imageGen, err := providers.CreateImageGen(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid image provider configuration")
	}

	runStore, err := storage.NewRunStore(cfg.OutputDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure output storage")
	}

	// Job store: durable when DATABASE_URL is set, in-memory otherwise.
	var store jobs.Store
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		pg := jobs.NewPGStore(dbpool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure jobs schema")
		}
		store = pg
	} else {
		store = jobs.NewMemoryStore()
	}

	factory := pipeline.NewFactory(vlmProvider, imageGen, runStore, logger)
	svc := jobs.NewService(jobs.ServiceOptions{
		Store: store,
		Runs:  runStore,
		Factory: jobs.FactoryFunc(func(runDir string, iterations int, sink pipeline.Sink) (jobs.Runner, error) {
			return factory.New(runDir, iterations, sink)
		}),
		Logger:        logger,
		MaxConcurrent: cfg.MaxConcurrentJobs,
		TTL:           cfg.JobTTL,
	})

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go svc.Janitor(janitorCtx, cfg.JobSweepInterval)

	app := handlers.NewApp(svc, logger)
	app.DefaultIterations = cfg.RefinementIterations
	router := httpapi.NewRouter(app, logger)
	server := infra.NewHTTPServer(cfg, router)

	// Start async
	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := svc.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("jobs still in flight at shutdown")
	}
	logger.Info().Msg("server stopped")
}
