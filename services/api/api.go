package api

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"

	"tenxcards/services/cards"
	"tenxcards/services/generator"
	"tenxcards/services/ledger"
	"tenxcards/services/reconciler"
)

// Config controls runtime behaviour for the API service.
type Config struct {
	Addr              string        `env:"ADDR,default=:8080"`
	DBDSN             string        `env:"DB_DSN,required"`
	JWTSigningKey     string        `env:"JWT_SIGNING_KEY,required"`
	AccessTokenTTL    time.Duration `env:"ACCESS_TOKEN_TTL,default=15m"`
	RefreshTokenTTL   time.Duration `env:"REFRESH_TOKEN_TTL,default=336h"`
	AuthEnabled       bool          `env:"AUTH_ENABLED,default=true"`
	GenerationEnabled bool          `env:"GENERATION_ENABLED,default=true"`
	ProviderAPIKey    string        `env:"OPENROUTER_API_KEY"`
	ProviderBaseURL   string        `env:"OPENROUTER_BASE_URL"`
	ProviderModel     string        `env:"GENERATION_MODEL"`
	ProviderTimeout   time.Duration `env:"GENERATION_TIMEOUT,default=60s"`
	ProviderRetries   int           `env:"GENERATION_MAX_RETRIES,default=2"`
	NATSURL           string        `env:"NATS_URL"`
	OTLPEndpoint      string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	AllowedOrigins    []string      `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`
	RateLimitPerMin   int           `env:"RATE_LIMIT_PER_MINUTE,default=120"`
	ExportBucket      string        `env:"EXPORT_BUCKET,default=tenxcards-exports"`
}

// LoadConfig returns a Config populated from environment variables.
func LoadConfig(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// API wires dependencies and configuration for the HTTP handlers.
type API struct {
	store      *Store
	config     Config
	log        zerolog.Logger
	auth       *authManager
	generator  generator.Service
	ledger     ledger.Ledger
	cards      *cards.Store
	reconciler *reconciler.Reconciler
}

// New initialises the API layer. The generator and ledger come in as
// interfaces so callers control the provider and the storage backend.
func New(store *Store, cfg Config, gen generator.Service, led ledger.Ledger, log zerolog.Logger) (*API, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if store.ORM == nil {
		return nil, errors.New("store ORM is required")
	}
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if led == nil {
		return nil, errors.New("ledger is required")
	}

	auth, err := newAuthManager(cfg.JWTSigningKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	cardStore, err := cards.NewStore(store.ORM)
	if err != nil {
		return nil, err
	}

	rec, err := reconciler.New(led, cardStore, log)
	if err != nil {
		return nil, err
	}

	return &API{
		store:      store,
		config:     cfg,
		log:        log.With().Str("component", "api").Logger(),
		auth:       auth,
		generator:  gen,
		ledger:     led,
		cards:      cardStore,
		reconciler: rec,
	}, nil
}
