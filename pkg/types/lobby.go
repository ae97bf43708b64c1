package types

import "time"

type LobbyStatus string

const (
	StatusWaiting    LobbyStatus = "waiting"
	StatusStarting   LobbyStatus = "starting"
	StatusInProgress LobbyStatus = "in_progress"
	StatusCompleted  LobbyStatus = "completed"
)

type MemberStatus string

const (
	MemberWaiting MemberStatus = "waiting"
	MemberReady   MemberStatus = "ready"
)

type LobbyMember struct {
	UserID         string       `json:"user_id"`
	UserName       string       `json:"user_name"`
	Status         MemberStatus `json:"status"`
	JoinedAt       time.Time    `json:"joined_at"`
	FitnessLevel   string       `json:"fitness_level,omitempty"`
	UserRole       string       `json:"user_role,omitempty"`
	ProfilePicture string       `json:"profile_picture,omitempty"`
}

// Exercise is a single Tabata interval of the generated workout.
type Exercise struct {
	Name        string `json:"name"`
	WorkSeconds int    `json:"work_seconds"`
	RestSeconds int    `json:"rest_seconds"`
	Sets        int    `json:"sets"`
}

type WorkoutPlan struct {
	WorkoutID string     `json:"workout_id"`
	Name      string     `json:"name"`
	Exercises []Exercise `json:"exercises"`
}

// LobbyState is the server-authoritative projection of a group-workout lobby.
type LobbyState struct {
	SessionID    string        `json:"session_id"`
	GroupID      string        `json:"group_id"`
	InitiatorID  string        `json:"initiator_id"`
	CustomizerID string        `json:"customizer_id,omitempty"`
	Status       LobbyStatus   `json:"status"`
	WorkoutData  *WorkoutPlan  `json:"workout_data,omitempty"`
	Members      []LobbyMember `json:"members"`
	MemberCount  int           `json:"member_count"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	IsExpired    bool          `json:"is_expired"`
}

// ChatMessage is one transcript entry. UserID is empty for system messages.
type ChatMessage struct {
	MessageID       string    `json:"message_id"`
	UserID          string    `json:"user_id,omitempty"`
	UserName        string    `json:"user_name"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
	IsSystemMessage bool      `json:"is_system_message"`
}

// TempMessagePrefix marks client-optimistic chat messages that have not been
// confirmed by the server yet.
const TempMessagePrefix = "temp-"

type ReadyCheckResponse string

const (
	ResponsePending  ReadyCheckResponse = "pending"
	ResponseAccepted ReadyCheckResponse = "accepted"
	ResponseDeclined ReadyCheckResponse = "declined"
)

type ReadyCheckResult string

const (
	ResultPending ReadyCheckResult = "pending"
	ResultSuccess ReadyCheckResult = "success"
	ResultFailed  ReadyCheckResult = "failed"
	ResultTimeout ReadyCheckResult = "timeout"
)
