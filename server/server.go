// Package server is the HTTP and WebSocket edge: routing, middleware
// and the socket hub.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayhq/chat-api/auth"
	"github.com/relayhq/chat-api/cache"
	"github.com/relayhq/chat-api/config"
	"github.com/relayhq/chat-api/server/handlers"
	"github.com/relayhq/chat-api/services"
	"github.com/relayhq/chat-api/store"
)

const ReadTimeout = 30 * time.Second

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	server *http.Server
	hub    *Hub
}

func NewServer(
	cfg *config.Config,
	s *store.Store,
	c *cache.Cache,
	validator TokenValidator,
	resolver *auth.Resolver,
	chatSvc *services.ChatService,
	hub *Hub,
) *Server {
	router := chi.NewRouter()

	router.Use(Recovery)
	router.Use(Logger)
	router.Use(CORS(cfg.Server.AllowedOrigins))

	healthH := handlers.NewHealthHandler(handlers.HealthHandlerConfig{
		DBPing:    func(ctx context.Context) error { return s.Ping(ctx) },
		CachePing: func(ctx context.Context) error { return c.Ping(ctx) },
		SecretOK:  cfg.SecretOK,
	})
	router.Get("/health", healthH.Readiness)
	router.Get("/health/ready", healthH.Readiness)
	router.Get("/health/live", healthH.Liveness)

	router.Handle("/metrics", promhttp.Handler())

	wsHandler := NewWSHandler(hub, cfg, validator, resolver)
	router.Get(cfg.Server.APIPrefix+"/ws/{conversation_id}", wsHandler.ServeHTTP)

	opsH := handlers.NewOpsHandler(cfg.AuthAPI.ServiceToken, resolver, s)
	router.Post(cfg.Server.APIPrefix+"/ops/invalidate-permissions", opsH.InvalidatePermissions)
	router.Get(cfg.Server.APIPrefix+"/ops/conversations", opsH.ListConversations)

	router.Route(cfg.Server.APIPrefix, func(r chi.Router) {
		r.Use(Auth(validator, cfg.Server.PublicPrefixes))

		msgH := handlers.NewMessageHandler(chatSvc, resolver)
		r.Post("/conversations/{conversation_id}/messages", msgH.Create)
		r.Get("/conversations/{conversation_id}/messages", msgH.List)
		r.Put("/conversations/{conversation_id}/messages/{message_id}", msgH.Update)
		r.Delete("/conversations/{conversation_id}/messages/{message_id}", msgH.Delete)
	})

	return &Server{
		cfg:    cfg,
		router: router,
		hub:    hub,
		server: &http.Server{
			Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:     router,
			ReadTimeout: ReadTimeout,
			// WriteTimeout stays zero: WebSocket connections are long-lived.
			WriteTimeout: 0,
		},
	}
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
