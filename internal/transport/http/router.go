package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Brain-Board-Development/BrainBoard/internal/app"
)

// NewRouter wires the coordinator's contracts onto HTTP and WebSocket routes.
func NewRouter(coord *app.Coordinator) http.Handler {
	sessions := NewSessionHandler(coord)
	ws := NewWSHandler(coord)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", sessions.Create)
		r.Get("/sessions/{sessionID}", sessions.Get)
		r.Get("/sessions/{sessionID}/leaderboard", sessions.Leaderboard)
		r.Delete("/sessions/{sessionID}", sessions.Abandon)
		r.Get("/pins/{pin}", sessions.ResolvePIN)
	})

	r.Get("/ws/host", ws.ServeHost)
	r.Get("/ws/play", ws.ServePlay)

	return r
}
