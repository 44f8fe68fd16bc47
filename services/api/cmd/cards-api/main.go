package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tenxcards/pkg/bus"
	"tenxcards/pkg/db"
	s3client "tenxcards/pkg/s3"
	"tenxcards/pkg/telemetry"
	"tenxcards/services/api"
	"tenxcards/services/generator"
	"tenxcards/services/ledger"
)

const serviceName = "cards-api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := api.LoadConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	shutdownTelemetry, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("init telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	orm, err := db.OpenORM(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open orm")
	}
	defer func() {
		if err := db.CloseORM(orm); err != nil {
			log.Error().Err(err).Msg("close orm")
		}
	}()

	eventBus, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect bus")
	}
	defer eventBus.Close()

	// Object storage is optional; export returns 424 until it is configured.
	s3Client, err := s3client.NewClientFromEnv()
	if err != nil {
		log.Warn().Err(err).Msg("object storage not configured")
		s3Client = nil
	}

	ledgerStore, err := ledger.NewStore(pool)
	if err != nil {
		log.Fatal().Err(err).Msg("init ledger")
	}

	gen := generator.New(generator.NewClient(generator.ClientConfig{
		APIKey:     cfg.ProviderAPIKey,
		BaseURL:    cfg.ProviderBaseURL,
		Timeout:    cfg.ProviderTimeout,
		MaxRetries: cfg.ProviderRetries,
	}, log.Logger), cfg.ProviderModel, log.Logger)

	app, err := api.New(&api.Store{
		DB:  pool,
		ORM: orm,
		S3:  s3Client,
		Bus: eventBus,
	}, cfg, gen, ledgerStore, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("init api")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           telemetry.Middleware(serviceName, log.Logger)(app.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("starting cards-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown server")
	}
}
