package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/brewnet/backend/internal/auth"
	"github.com/brewnet/backend/internal/middleware"
)

// Router holds all handlers and creates the chi router
type Router struct {
	healthHandler       *HealthHandler
	sessionHandler      *SessionHandler
	connectionHandler   *ConnectionHandler
	notificationHandler *NotificationHandler
	presenceHandler     *PresenceHandler
	jwtManager          *auth.JWTManager
	allowedOrigins      []string
	logger              *zap.Logger
}

// NewRouter creates a new router
func NewRouter(
	healthHandler *HealthHandler,
	sessionHandler *SessionHandler,
	connectionHandler *ConnectionHandler,
	notificationHandler *NotificationHandler,
	presenceHandler *PresenceHandler,
	jwtManager *auth.JWTManager,
	allowedOrigins []string,
	logger *zap.Logger,
) *Router {
	return &Router{
		healthHandler:       healthHandler,
		sessionHandler:      sessionHandler,
		connectionHandler:   connectionHandler,
		notificationHandler: notificationHandler,
		presenceHandler:     presenceHandler,
		jwtManager:          jwtManager,
		allowedOrigins:      allowedOrigins,
		logger:              logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.CORSMiddleware(rt.allowedOrigins))

	// Health endpoints (no auth required)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", rt.healthHandler.Health)
		r.Get("/ready", rt.healthHandler.Ready)
		r.Get("/live", rt.healthHandler.Live)
	})

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(rt.jwtManager))

		// Push channel; compression would get in the way of the upgrade
		r.Get("/ws", rt.presenceHandler.Connect)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Compress(5))

			r.Route("/session", func(r chi.Router) {
				r.Post("/sign-in", rt.sessionHandler.SignIn)
				r.Post("/sign-out", rt.sessionHandler.SignOut)
			})
			r.Get("/users/online", rt.sessionHandler.OnlineUsers)

			r.Route("/connections", func(r chi.Router) {
				r.Get("/", rt.connectionHandler.GetConnections)
				r.Get("/requests", rt.connectionHandler.GetPendingRequests)
				r.Get("/status/{userId}", rt.connectionHandler.GetStatus)
				r.Post("/request", rt.connectionHandler.SendRequest)
				r.Post("/accept", rt.connectionHandler.Accept)
				r.Post("/reject", rt.connectionHandler.Reject)
				r.Delete("/{userId}", rt.connectionHandler.Remove)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/readAll/{userId}", rt.notificationHandler.MarkAllRead)
				r.Put("/readAll/{userId}", rt.notificationHandler.MarkAllRead)
				r.Get("/unread-count/{userId}", rt.notificationHandler.UnreadCount)
				r.Put("/{id}/read", rt.notificationHandler.MarkRead)
				r.Get("/{userId}", rt.notificationHandler.GetNotifications)
			})
		})
	})

	return r
}
