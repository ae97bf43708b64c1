package harness

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func SetupRoutes(h *Hub, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/api/lobbies", CreateLobbyHandler(h))
	r.Get("/api/lobbies/{sessionID}", GetLobbyHandler(h))
	r.Post("/api/lobbies/{sessionID}/join", JoinLobbyHandler(h))
	r.Post("/api/lobbies/{sessionID}/leave", LeaveLobbyHandler(h))
	r.Post("/api/lobbies/{sessionID}/ready", SetReadyHandler(h))
	r.Post("/api/lobbies/{sessionID}/ready-check", StartReadyCheckHandler(h))
	r.Post("/api/lobbies/{sessionID}/ready-check/respond", RespondHandler(h))
	r.Post("/api/lobbies/{sessionID}/messages", ChatHandler(h))
	r.Post("/api/lobbies/{sessionID}/start", StartWorkoutHandler(h))
	r.Get("/healthz", Healthz)
	r.Get("/ws", WSHandler(h, log))
	return r
}
