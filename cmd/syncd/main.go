package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/heygaia/chat-sync/internal/api"
	"github.com/heygaia/chat-sync/internal/api/handler"
	"github.com/heygaia/chat-sync/internal/backend"
	"github.com/heygaia/chat-sync/internal/config"
	"github.com/heygaia/chat-sync/internal/domain"
	"github.com/heygaia/chat-sync/internal/redis"
	"github.com/heygaia/chat-sync/internal/security"
	"github.com/heygaia/chat-sync/internal/store/postgres"
	"github.com/heygaia/chat-sync/internal/store/sqlite"
	"github.com/heygaia/chat-sync/internal/stream"
	"github.com/heygaia/chat-sync/internal/syncer"
)

// tokenFileSalt stays fixed so restarts derive the same key from the
// configured passphrase.
const tokenFileSalt = "gaia-chat-sync-token"

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Logging)

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("store", cfg.Store.Driver).
		Msg("Starting GAIA chat sync daemon")

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer st.Close()

	tokens, tokenStore, err := buildTokenSource(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up token source")
	}

	client := backend.NewClient(cfg.Backend.BaseURL, tokens, cfg.Backend.Timeout, log.Logger)

	tracker := stream.NewTracker()
	svc := syncer.NewService(st, client, tracker, cfg.Sync.PageLimit, log.Logger)

	// Redis is optional: without it the daemon runs unrate-limited and keeps
	// change events process-local.
	var rateLimiter *redis.RateLimiter
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(context.Background(), cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		publisher := redis.NewPublisher(redisClient, st, log.Logger)
		defer publisher.Stop()

		rateLimiter = redis.NewRateLimiter(
			redisClient,
			cfg.Server.RateLimit.RequestsPerMinute,
			cfg.Server.RateLimit.Burst,
		)
	}

	router := api.NewRouter(cfg, api.Deps{
		Store:       st,
		Tracker:     tracker,
		Syncer:      svc,
		Tokens:      tokenStore,
		RateLimiter: rateLimiter,
		Log:         log.Logger,
	})
	server := api.NewServer(cfg, router)

	syncCtx, stopSync := context.WithCancel(context.Background())
	go svc.Run(syncCtx, cfg.Sync.Interval)

	go func() {
		log.Info().Msgf("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	stopSync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Stopped")
}

func setupLogger(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if level, err := zerolog.ParseLevel(cfg.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	var writers []io.Writer
	if cfg.Format == "console" {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		writers = append(writers, os.Stderr)
	}

	if cfg.File != "" {
		rl, err := rotatelogs.New(
			cfg.File+".%Y%m%d",
			rotatelogs.WithLinkName(cfg.File),
			rotatelogs.WithRotationTime(24*time.Hour),
			rotatelogs.WithMaxAge(7*24*time.Hour),
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to open log file, logging to stderr only")
		} else {
			writers = append(writers, rl)
		}
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
}

func openStore(cfg *config.Config) (domain.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return postgres.Open(
			context.Background(),
			cfg.Store.Postgres.DSN(),
			cfg.Store.Postgres.MaxConns,
			log.Logger,
		)
	default:
		return sqlite.Open(cfg.Store.SQLite.Path, log.Logger)
	}
}

// buildTokenSource prefers a fixed environment token; otherwise tokens are
// held encrypted on disk and managed through the local API.
func buildTokenSource(cfg *config.Config) (backend.TokenSource, handler.TokenStore, error) {
	if cfg.Backend.Token != "" {
		return backend.StaticToken(cfg.Backend.Token), nil, nil
	}

	encryptor, err := security.NewEncryptorFromPassphrase(cfg.Backend.TokenPassphrase, tokenFileSalt)
	if err != nil {
		return nil, nil, err
	}
	fts := backend.NewFileTokenSource(cfg.Backend.TokenFile, encryptor)
	return fts, fts, nil
}
