package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

const (
	fileMode = 0o600
	dirMode  = 0o700

	tempFilePattern = ".lobby-session-*.toml.tmp"
)

// Record is the lightweight persisted "which lobby am I in" fact. It survives
// app restarts and is independent of the richer in-memory lobby store.
type Record struct {
	SessionID   string    `toml:"session_id"`
	GroupID     string    `toml:"group_id"`
	GroupName   string    `toml:"group_name"`
	InitiatorID string    `toml:"initiator_id"`
	UserID      string    `toml:"user_id"`
	IsMinimized bool      `toml:"is_minimized"`
	JoinedAt    time.Time `toml:"joined_at"`
}

type fileSchema struct {
	Session   *Record `toml:"session,omitempty"`
	Reconnect struct {
		SessionID string    `toml:"session_id,omitempty"`
		SavedAt   time.Time `toml:"saved_at,omitempty"`
	} `toml:"reconnect"`
}

// Context owns the persisted session record. The app is in at most one lobby
// at a time, so the file holds at most one record.
type Context struct {
	mu   sync.Mutex
	log  *zap.Logger
	path string

	current   *Record
	reconnect string
}

// NewContext loads any persisted record from path. A missing file is a clean
// empty state, not an error.
func NewContext(path string, log *zap.Logger) (*Context, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Context{log: log.Named("session"), path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		// A corrupt session file must not brick the app; start empty.
		c.log.Warn("discarding unreadable session file", zap.Error(err))
		return c, nil
	}
	c.current = file.Session
	c.reconnect = file.Reconnect.SessionID
	return c, nil
}

// DefaultPath places the session file under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "fitnease", "lobby-session.toml"), nil
}

// Current returns a copy of the persisted record, or nil when not in a lobby.
func (c *Context) Current() *Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

// Save replaces the persisted record.
func (c *Context) Save(rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec.JoinedAt.IsZero() {
		rec.JoinedAt = time.Now()
	}
	c.current = &rec
	return c.writeLocked()
}

// SetMinimized toggles the minimized-bubble flag on the persisted record so
// the surface state survives restart.
func (c *Context) SetMinimized(min bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	c.current.IsMinimized = min
	return c.writeLocked()
}

// Clear removes the persisted record.
func (c *Context) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	return c.writeLocked()
}

// ReconnectSession returns the session id stashed for reconnect-to-active
// handoff, or "".
func (c *Context) ReconnectSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnect
}

func (c *Context) SetReconnectSession(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnect = sessionID
	return c.writeLocked()
}

func (c *Context) ClearReconnectSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnect = ""
	return c.writeLocked()
}

// writeLocked persists the current in-memory state atomically: marshal to a
// temp file in the same directory, then rename over the target.
func (c *Context) writeLocked() error {
	var file fileSchema
	file.Session = c.current
	file.Reconnect.SessionID = c.reconnect
	if c.reconnect != "" {
		file.Reconnect.SavedAt = time.Now()
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod session file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
