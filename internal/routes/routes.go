package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/handlers"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/metrics"
)

// SetupRoutes registers every endpoint on r. auth guards the user routes
// and the live location socket.
func SetupRoutes(r chi.Router, h *handlers.Handler, auth func(http.Handler) http.Handler) {
	// Liveness and metrics
	r.Get("/", h.Health)
	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Public user routes
	r.Post("/api/users/register", h.Register)
	r.Post("/api/users/login", h.Login)

	// Cron-style trigger for deployments without the in-process schedule
	r.Post("/internal/sweep/location-shares", h.SweepLocationShares)

	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/api/users/settings", h.UpdateSettings)
		r.Get("/api/users/profile", h.Profile)
		r.Get("/api/users/suburbs", h.Suburbs)
		r.Get("/api/users/categories", h.Categories)

		r.Post("/api/posts", h.CreatePost)
		r.Get("/api/posts", h.ListPosts)
		r.Get("/api/posts/location", h.ListPostsByLocation)
		r.Get("/api/posts/hotspots", h.Hotspots)
		r.Post("/api/posts/media", h.UploadMedia)

		r.Post("/api/groups/create", h.CreateGroup)
		r.Post("/api/groups/join", h.JoinGroup)
		r.Get("/api/groups", h.ListGroups)
		r.Get("/api/groups/{id}/posts", h.GroupPosts)

		r.Post("/api/panic", h.Panic)
		r.Get("/api/panic/recent", h.RecentPanics)

		r.Post("/api/location/share", h.ShareLocation)
		r.Get("/ws/location", h.LocationWebSocket)
	})
}
