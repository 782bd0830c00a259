package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/notifar/notifar/internal/authz"
	"github.com/notifar/notifar/internal/handlers"
	"github.com/notifar/notifar/internal/models"
	"github.com/notifar/notifar/internal/push"
)

// NewRouter sets up the API routes
func NewRouter(
	auth *handlers.AuthHandler,
	notifications *handlers.NotificationHandler,
	configs *handlers.ConfigHandler,
	ws *push.Handler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Everything below requires a valid token.
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	// Notification endpoints
	api.HandleFunc("/notifications", notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/me", notifications.ListForUser).Methods(http.MethodGet)
	api.HandleFunc("/notifications/me/unread-count", notifications.UnreadCount).Methods(http.MethodGet)
	api.HandleFunc("/notifications/me/read", notifications.MarkRead).Methods(http.MethodPut)
	api.HandleFunc("/notifications/me/unread", notifications.MarkUnread).Methods(http.MethodPut)
	api.HandleFunc("/notifications/me", notifications.DeleteSelected).Methods(http.MethodDelete)
	api.HandleFunc("/notifications/me/all", notifications.DeleteAll).Methods(http.MethodDelete)
	api.HandleFunc("/notifications/me/archive", notifications.ArchiveSelected).Methods(http.MethodPost)
	api.HandleFunc("/notifications/me/archive/all", notifications.ArchiveAll).Methods(http.MethodPost)

	// Push delivery over WebSocket
	api.HandleFunc("/push", ws.Serve).Methods(http.MethodGet)

	// Notification config endpoints, admin only
	cfg := api.PathPrefix("/notification-configs").Subrouter()
	cfg.Use(authz.RequireRole(models.RoleAdmin))
	cfg.HandleFunc("", configs.List).Methods(http.MethodGet)
	cfg.HandleFunc("/exists", configs.Exists).Methods(http.MethodGet)
	cfg.HandleFunc("/default-archive", configs.SetDefaultArchive).Methods(http.MethodPut)
	cfg.HandleFunc("", configs.Create).Methods(http.MethodPost)
	cfg.HandleFunc("/{configID}", configs.Get).Methods(http.MethodGet)
	cfg.HandleFunc("/{configID}", configs.Update).Methods(http.MethodPut)
	cfg.HandleFunc("/{configID}", configs.Delete).Methods(http.MethodDelete)

	return router
}
