package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/heygaia/chat-sync/internal/api/handler"
	custommw "github.com/heygaia/chat-sync/internal/api/middleware"
	"github.com/heygaia/chat-sync/internal/config"
	"github.com/heygaia/chat-sync/internal/domain"
	"github.com/heygaia/chat-sync/internal/redis"
	"github.com/heygaia/chat-sync/internal/stream"
)

// Deps carries everything the router wires together. RateLimiter and Tokens
// may be nil (Redis disabled, environment-managed token).
type Deps struct {
	Store       domain.Store
	Tracker     *stream.Tracker
	Syncer      handler.SyncTrigger
	Tokens      handler.TokenStore
	RateLimiter *redis.RateLimiter
	Log         zerolog.Logger
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommw.Logger(deps.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	// The shell is a local web view, so CORS stays permissive.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	conversationHandler := handler.NewConversationHandler(deps.Store)
	messageHandler := handler.NewMessageHandler(deps.Store)
	streamHandler := handler.NewStreamHandler(deps.Tracker)
	syncHandler := handler.NewSyncHandler(deps.Store, deps.Syncer, deps.Tokens, deps.Log)

	r.Route("/api/v1", func(r chi.Router) {
		// Health checks stay open so process supervisors can probe them.
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Store))

		r.Group(func(r chi.Router) {
			r.Use(custommw.BearerAuth(cfg.Server.AuthToken))
			r.Use(custommw.RateLimit(deps.RateLimiter, deps.Log))

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", conversationHandler.List)

				r.Route("/{conversationID}", func(r chi.Router) {
					r.Get("/", conversationHandler.Get)
					r.Patch("/", conversationHandler.Update)
					r.Delete("/", conversationHandler.Delete)
					r.Get("/messages", conversationHandler.Messages)
					r.Post("/messages", messageHandler.Create)
				})
			})

			r.Route("/messages/{messageID}", func(r chi.Router) {
				r.Patch("/", messageHandler.Update)
				r.Post("/confirm", messageHandler.Confirm)
			})

			r.Route("/stream/{conversationID}", func(r chi.Router) {
				r.Post("/begin", streamHandler.Begin)
				r.Post("/end", streamHandler.End)
			})

			r.Post("/sync", syncHandler.Trigger)
			r.Post("/auth/token", syncHandler.SetToken)
			r.Post("/logout", syncHandler.Logout)
		})
	})

	return r
}

// NewServer builds the HTTP server around the router with the configured
// listen address and timeouts.
func NewServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}
