package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TheMeowgician/fitnease-lobby/internal/lobbystate"
	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

// ChatAPI is the slice of the outbound API the chat sender needs.
type ChatAPI interface {
	SendChatMessage(ctx context.Context, sessionID, userID, userName, message string) (*types.ChatMessage, error)
}

// ChatSender implements the optimistic send flow: a temp-prefixed placeholder
// goes into the transcript immediately, then is swapped for the
// server-confirmed message (or removed on failure).
type ChatSender struct {
	api      ChatAPI
	lobby    *lobbystate.Store
	userID   string
	userName string
	log      *zap.Logger
}

func NewChatSender(api ChatAPI, lobby *lobbystate.Store, userID, userName string, log *zap.Logger) *ChatSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatSender{api: api, lobby: lobby, userID: userID, userName: userName, log: log.Named("chat")}
}

// Send posts text to the current lobby's chat.
func (s *ChatSender) Send(ctx context.Context, text string) error {
	sessionID := s.lobby.SessionID()
	if sessionID == "" {
		return fmt.Errorf("send chat: no active lobby")
	}

	tempID := types.TempMessagePrefix + uuid.NewString()
	s.lobby.AddChatMessage(types.ChatMessage{
		MessageID: tempID,
		UserID:    s.userID,
		UserName:  s.userName,
		Message:   text,
		Timestamp: time.Now(),
	})

	confirmed, err := s.api.SendChatMessage(ctx, sessionID, s.userID, s.userName, text)
	if err != nil {
		s.lobby.RemoveTempMessage(tempID)
		return fmt.Errorf("send chat: %w", err)
	}

	s.lobby.RemoveTempMessage(tempID)
	// The confirmed message usually also arrives via LobbyMessageSent; the
	// store's id dedup makes this insert and the event's insert collapse.
	s.lobby.AddChatMessage(*confirmed)
	return nil
}
