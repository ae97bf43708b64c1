package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

// ErrNotInLobby is the idempotent-absence signal: the server says the user is
// already not a member (or the session is gone). Leave flows treat it as
// success.
var ErrNotInLobby = errors.New("not in this lobby")

// ErrSessionEnded covers rejoin attempts against a session that already
// completed or expired.
var ErrSessionEnded = errors.New("session already ended")

// Client is the typed HTTP wrapper around the lobby service.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	log     *zap.Logger
}

func NewClient(baseURL, token string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		log:     log.Named("api"),
	}
}

type apiError struct {
	Message string `json:"message"`
}

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

type respondRequest struct {
	UserID   string                   `json:"user_id"`
	Response types.ReadyCheckResponse `json:"response"`
}

type chatRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Message  string `json:"message"`
}

type readyRequest struct {
	UserID string `json:"user_id"`
	Ready  bool   `json:"ready"`
}

type userRequest struct {
	UserID string `json:"user_id"`
}

// CreateLobby opens a new group-workout lobby and returns its initial state.
func (c *Client) CreateLobby(ctx context.Context, groupID, userID, userName string, workout *types.WorkoutPlan) (*types.LobbyState, error) {
	var state types.LobbyState
	err := c.do(ctx, http.MethodPost, "/api/lobbies",
		createLobbyRequest{GroupID: groupID, UserID: userID, UserName: userName, Workout: workout}, &state)
	if err != nil {
		return nil, fmt.Errorf("create lobby: %w", err)
	}
	return &state, nil
}

// JoinLobby adds the user to an existing lobby and returns the current state.
func (c *Client) JoinLobby(ctx context.Context, sessionID, userID, userName string) (*types.LobbyState, error) {
	var state types.LobbyState
	err := c.do(ctx, http.MethodPost, "/api/lobbies/"+sessionID+"/join",
		joinLobbyRequest{UserID: userID, UserName: userName}, &state)
	if err != nil {
		return nil, fmt.Errorf("join lobby %s: %w", sessionID, err)
	}
	return &state, nil
}

// GetLobbySession fetches the authoritative snapshot for membership
// re-validation after foreground transitions.
func (c *Client) GetLobbySession(ctx context.Context, sessionID string) (*types.LobbyState, error) {
	var state types.LobbyState
	err := c.do(ctx, http.MethodGet, "/api/lobbies/"+sessionID, nil, &state)
	if err != nil {
		return nil, fmt.Errorf("get lobby %s: %w", sessionID, err)
	}
	return &state, nil
}

// LeaveLobby removes the user. Callers should treat ErrNotInLobby as success.
func (c *Client) LeaveLobby(ctx context.Context, sessionID, userID string) error {
	err := c.do(ctx, http.MethodPost, "/api/lobbies/"+sessionID+"/leave", userRequest{UserID: userID}, nil)
	if err != nil {
		return fmt.Errorf("leave lobby %s: %w", sessionID, err)
	}
	return nil
}

// SetReady toggles the caller's ready flag in the roster.
func (c *Client) SetReady(ctx context.Context, sessionID, userID string, ready bool) error {
	err := c.do(ctx, http.MethodPost, "/api/lobbies/"+sessionID+"/ready", readyRequest{UserID: userID, Ready: ready}, nil)
	if err != nil {
		return fmt.Errorf("set ready: %w", err)
	}
	return nil
}

// StartReadyCheck begins the "is everyone ready" poll (initiator only).
func (c *Client) StartReadyCheck(ctx context.Context, sessionID, userID string) error {
	err := c.do(ctx, http.MethodPost, "/api/lobbies/"+sessionID+"/ready-check", userRequest{UserID: userID}, nil)
	if err != nil {
		return fmt.Errorf("start ready check: %w", err)
	}
	return nil
}

// RespondToReadyCheck records the caller's accept/decline.
func (c *Client) RespondToReadyCheck(ctx context.Context, sessionID, userID string, response types.ReadyCheckResponse) error {
	err := c.do(ctx, http.MethodPost, "/api/lobbies/"+sessionID+"/ready-check/respond",
		respondRequest{UserID: userID, Response: response}, nil)
	if err != nil {
		return fmt.Errorf("respond to ready check: %w", err)
	}
	return nil
}

// SendChatMessage posts a message and returns the server-confirmed entry.
func (c *Client) SendChatMessage(ctx context.Context, sessionID, userID, userName, message string) (*types.ChatMessage, error) {
	var confirmed types.ChatMessage
	err := c.do(ctx, http.MethodPost, "/api/lobbies/"+sessionID+"/messages",
		chatRequest{UserID: userID, UserName: userName, Message: message}, &confirmed)
	if err != nil {
		return nil, fmt.Errorf("send chat message: %w", err)
	}
	return &confirmed, nil
}

// StartWorkout transitions the lobby to in_progress (initiator only).
func (c *Client) StartWorkout(ctx context.Context, sessionID, userID string) error {
	err := c.do(ctx, http.MethodPost, "/api/lobbies/"+sessionID+"/start", userRequest{UserID: userID}, nil)
	if err != nil {
		return fmt.Errorf("start workout: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// decodeError maps the server's error message onto the client's sentinels.
// The "not in this lobby" / "not found" strings are the distinguishable
// already-absent signal the leave flow depends on.
func (c *Client) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr apiError
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not in this lobby"),
		strings.Contains(lower, "not a member"),
		resp.StatusCode == http.StatusNotFound,
		strings.Contains(lower, "not found"):
		return fmt.Errorf("%w: %s", ErrNotInLobby, msg)
	case strings.Contains(lower, "ended"), strings.Contains(lower, "expired"),
		strings.Contains(lower, "completed"):
		return fmt.Errorf("%w: %s", ErrSessionEnded, msg)
	}
	return fmt.Errorf("api status %d: %s", resp.StatusCode, msg)
}
