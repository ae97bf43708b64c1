package harness

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

const lobbyTTL = 2 * time.Hour

type createLobbyRequest struct {
	GroupID  string             `json:"group_id"`
	UserID   string             `json:"user_id"`
	UserName string             `json:"user_name"`
	Workout  *types.WorkoutPlan `json:"workout,omitempty"`
}

type joinLobbyRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

type readyRequest struct {
	UserID string `json:"user_id"`
	Ready  bool   `json:"ready"`
}

type respondRequest struct {
	UserID   string                   `json:"user_id"`
	UserName string                   `json:"user_name"`
	Response types.ReadyCheckResponse `json:"response"`
}

type chatRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Message  string `json:"message"`
}

type userRequest struct {
	UserID string `json:"user_id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Message string `json:"message"`
	}{Message: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return false
	}
	return true
}

func getSession(h *Hub, sessionID string) *Lobby {
	reply := make(chan *Lobby, 1)
	h.Inbox() <- GetSession{SessionID: sessionID, Reply: reply}
	return <-reply
}

func CreateLobbyHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLobbyRequest
		if !decodeBody(w, r, &req) {
			return
		}

		now := time.Now()
		state := types.LobbyState{
			SessionID:   uuid.NewString(),
			GroupID:     req.GroupID,
			InitiatorID: req.UserID,
			Status:      types.StatusWaiting,
			WorkoutData: req.Workout,
			Members: []types.LobbyMember{{
				UserID:   req.UserID,
				UserName: req.UserName,
				Status:   types.MemberWaiting,
				JoinedAt: now,
			}},
			MemberCount: 1,
			CreatedAt:   now,
			ExpiresAt:   now.Add(lobbyTTL),
		}

		reply := make(chan *Lobby, 1)
		h.Inbox() <- CreateSession{State: state, Reply: reply}
		if <-reply == nil {
			writeError(w, http.StatusInternalServerError, "failed to create lobby")
			return
		}
		writeJSON(w, http.StatusCreated, state)
	}
}

func JoinLobbyHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinLobbyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		lb := getSession(h, chi.URLParam(r, "sessionID"))
		if lb == nil {
			writeError(w, http.StatusNotFound, "lobby session not found")
			return
		}
		reply := make(chan types.LobbyState, 1)
		lb.Inbox() <- Join{
			Member: types.LobbyMember{UserID: req.UserID, UserName: req.UserName},
			Reply:  reply,
		}
		writeJSON(w, http.StatusOK, <-reply)
	}
}

func GetLobbyHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb := getSession(h, chi.URLParam(r, "sessionID"))
		if lb == nil {
			writeError(w, http.StatusNotFound, "lobby session not found")
			return
		}
		reply := make(chan types.LobbyState, 1)
		lb.Inbox() <- GetState{Reply: reply}
		writeJSON(w, http.StatusOK, <-reply)
	}
}

func LeaveLobbyHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userRequest
		if !decodeBody(w, r, &req) {
			return
		}
		lb := getSession(h, chi.URLParam(r, "sessionID"))
		if lb == nil {
			writeError(w, http.StatusNotFound, "lobby session not found")
			return
		}
		reply := make(chan error, 1)
		lb.Inbox() <- Leave{UserID: req.UserID, Reply: reply}
		if err := <-reply; err != nil {
			if errors.Is(err, ErrNotMember) {
				writeError(w, http.StatusBadRequest, "not in this lobby")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SetReadyHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req readyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		lb := getSession(h, chi.URLParam(r, "sessionID"))
		if lb == nil {
			writeError(w, http.StatusNotFound, "lobby session not found")
			return
		}
		reply := make(chan error, 1)
		lb.Inbox() <- SetReady{UserID: req.UserID, Ready: req.Ready, Reply: reply}
		if err := <-reply; err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func StartReadyCheckHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userRequest
		if !decodeBody(w, r, &req) {
			return
		}
		lb := getSession(h, chi.URLParam(r, "sessionID"))
		if lb == nil {
			writeError(w, http.StatusNotFound, "lobby session not found")
			return
		}
		reply := make(chan error, 1)
		lb.Inbox() <- StartReadyCheck{UserID: req.UserID, Reply: reply}
		if err := <-reply; err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func RespondHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req respondRequest
		if !decodeBody(w, r, &req) {
			return
		}
		lb := getSession(h, chi.URLParam(r, "sessionID"))
		if lb == nil {
			writeError(w, http.StatusNotFound, "lobby session not found")
			return
		}
		lb.Inbox() <- Respond{UserID: req.UserID, UserName: req.UserName, Response: req.Response}
		w.WriteHeader(http.StatusAccepted)
	}
}

func ChatHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		lb := getSession(h, chi.URLParam(r, "sessionID"))
		if lb == nil {
			writeError(w, http.StatusNotFound, "lobby session not found")
			return
		}
		reply := make(chan types.ChatMessage, 1)
		lb.Inbox() <- Chat{UserID: req.UserID, UserName: req.UserName, Text: req.Message, Reply: reply}
		writeJSON(w, http.StatusCreated, <-reply)
	}
}

func StartWorkoutHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userRequest
		if !decodeBody(w, r, &req) {
			return
		}
		lb := getSession(h, chi.URLParam(r, "sessionID"))
		if lb == nil {
			writeError(w, http.StatusNotFound, "lobby session not found")
			return
		}
		reply := make(chan error, 1)
		lb.Inbox() <- StartWorkout{UserID: req.UserID, Reply: reply}
		if err := <-reply; err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
