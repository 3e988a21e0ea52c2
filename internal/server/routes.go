package server

import (
	"net/http"

	"github.com/ternarybob/linkprobe/internal/app"
)

// setupRoutes configures the orchestrator API routes
func (s *Server) setupRoutes(a *app.App) *http.ServeMux {
	mux := http.NewServeMux()
	auth := a.Auth
	tests := a.LinkTestHandler

	// WebSocket route (authenticates itself, token may be in the query)
	mux.HandleFunc("/ws", a.WSHandler.HandleWebSocket)

	// API routes - Tests
	mux.HandleFunc("/api/tests", auth.Require(func(w http.ResponseWriter, r *http.Request) {
		RouteResourceCollection(w, r, tests.ListHandler, tests.CreateHandler)
	}))
	mux.HandleFunc("/api/tests/", auth.Require(tests.ItemHandler)) // GET /{id}, POST|DELETE /{id}/share, GET /{id}/screenshots/{step}

	// Public share links
	mux.HandleFunc("/api/shared/", a.SharedHandler.ItemHandler)

	// API routes - Account
	mux.HandleFunc("/api/credits", auth.Require(tests.CreditsHandler))
	mux.HandleFunc("/api/stats", auth.Require(tests.StatsHandler))

	// API routes - Admin
	mux.HandleFunc("/api/admin/sweep", auth.RequireAdmin(a.AdminHandler.SweepHandler))
	mux.HandleFunc("/api/admin/profiles", auth.RequireAdmin(a.AdminHandler.ProfilesHandler))
	mux.HandleFunc("/api/admin/accounts/", auth.RequireAdmin(a.AdminHandler.AccountCreditsHandler)) // POST /{id}/credits

	// API routes - System
	mux.HandleFunc("/api/health", a.SystemHandler.HealthHandler)
	mux.HandleFunc("/api/version", a.SystemHandler.VersionHandler)

	mux.HandleFunc("/", notFound)

	return mux
}

// setupWorkerRoutes configures the browser worker control protocol
func (s *Server) setupWorkerRoutes(a *app.WorkerApp) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", a.WorkerHandler.HealthHandler)
	mux.HandleFunc("/run", a.WorkerHandler.RunHandler)
	mux.HandleFunc("/", notFound)

	return mux
}

func notFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not found", http.StatusNotFound)
}
