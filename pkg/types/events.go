package types

import "time"

// Server -> Client
// LobbyStateChanged:    full LobbyState snapshot
// MemberStatusUpdate:   member joined or toggled ready/waiting (upsert)
// MemberKicked:         member removed by the initiator
// LobbyMessageSent:     chat message broadcast
// LobbyDeleted:         lobby torn down server-side
// ExercisesGenerated:   workout plan (re)generated, informational
// ReadyCheckStarted / ReadyCheckResponse / ReadyCheckComplete / ReadyCheckCancelled

const (
	EvtLobbyStateChanged   = "LobbyStateChanged"
	EvtMemberStatusUpdate  = "MemberStatusUpdate"
	EvtMemberKicked        = "MemberKicked"
	EvtLobbyMessageSent    = "LobbyMessageSent"
	EvtLobbyDeleted        = "LobbyDeleted"
	EvtExercisesGenerated  = "ExercisesGenerated"
	EvtReadyCheckStarted   = "ReadyCheckStarted"
	EvtReadyCheckResponse  = "ReadyCheckResponse"
	EvtReadyCheckComplete  = "ReadyCheckComplete"
	EvtReadyCheckCancelled = "ReadyCheckCancelled"
)

type LobbyStateChangedPayload struct {
	State LobbyState `json:"state"`
}

type MemberStatusUpdatePayload struct {
	SessionID string      `json:"session_id"`
	Member    LobbyMember `json:"member"`
}

type MemberKickedPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type LobbyMessageSentPayload struct {
	SessionID string      `json:"session_id"`
	Message   ChatMessage `json:"message"`
}

type LobbyDeletedPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

type ExercisesGeneratedPayload struct {
	SessionID     string `json:"session_id"`
	ExerciseCount int    `json:"exercise_count"`
}

type ReadyCheckStartedPayload struct {
	SessionID      string    `json:"session_id"`
	GroupID        string    `json:"group_id"`
	GroupName      string    `json:"group_name"`
	InitiatorID    string    `json:"initiator_id"`
	InitiatorName  string    `json:"initiator_name"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type ReadyCheckResponsePayload struct {
	SessionID string             `json:"session_id"`
	UserID    string             `json:"user_id"`
	UserName  string             `json:"user_name"`
	Response  ReadyCheckResponse `json:"response"`
}

type ReadyCheckCompletePayload struct {
	SessionID string           `json:"session_id"`
	Result    ReadyCheckResult `json:"result"` // success | failed
}

type ReadyCheckCancelledPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}
