package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"

	"tenxcards/pkg/bus"
	"tenxcards/pkg/db"
	"tenxcards/pkg/telemetry"
	"tenxcards/services/projector"
)

const serviceName = "cards-projector"

type config struct {
	DBDSN        string `env:"DB_DSN,required"`
	NATSURL      string `env:"NATS_URL,required"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
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

	p, err := projector.New(orm, eventBus, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("init projector")
	}
	if err := p.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start projector")
	}
	defer p.Close()

	log.Info().Msg("cards-projector consuming events")
	<-ctx.Done()
}
