package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "lobby-session.toml")
}

func TestNewContext_MissingFileIsEmpty(t *testing.T) {
	c, err := NewContext(tempPath(t), nil)
	require.NoError(t, err)
	assert.Nil(t, c.Current())
	assert.Equal(t, "", c.ReconnectSession())
}

func TestSaveAndReload(t *testing.T) {
	path := tempPath(t)

	c, err := NewContext(path, nil)
	require.NoError(t, err)
	require.NoError(t, c.Save(Record{
		SessionID:   "sess-1",
		GroupID:     "group-1",
		GroupName:   "Morning Tabata",
		InitiatorID: "u1",
		UserID:      "u2",
	}))

	// a fresh context simulates an app restart
	c2, err := NewContext(path, nil)
	require.NoError(t, err)
	rec := c2.Current()
	require.NotNil(t, rec)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, "group-1", rec.GroupID)
	assert.Equal(t, "u2", rec.UserID)
	assert.False(t, rec.JoinedAt.IsZero())
}

func TestSetMinimized_Persists(t *testing.T) {
	path := tempPath(t)
	c, err := NewContext(path, nil)
	require.NoError(t, err)
	require.NoError(t, c.Save(Record{SessionID: "sess-1", UserID: "u1"}))

	require.NoError(t, c.SetMinimized(true))

	c2, err := NewContext(path, nil)
	require.NoError(t, err)
	require.NotNil(t, c2.Current())
	assert.True(t, c2.Current().IsMinimized)
}

func TestSetMinimized_NoopWithoutRecord(t *testing.T) {
	c, err := NewContext(tempPath(t), nil)
	require.NoError(t, err)
	require.NoError(t, c.SetMinimized(true))
	assert.Nil(t, c.Current())
}

func TestClear_RemovesRecordButKeepsReconnect(t *testing.T) {
	path := tempPath(t)
	c, err := NewContext(path, nil)
	require.NoError(t, err)
	require.NoError(t, c.Save(Record{SessionID: "sess-1", UserID: "u1"}))
	require.NoError(t, c.SetReconnectSession("sess-1"))

	require.NoError(t, c.Clear())

	c2, err := NewContext(path, nil)
	require.NoError(t, err)
	assert.Nil(t, c2.Current())
	assert.Equal(t, "sess-1", c2.ReconnectSession())

	require.NoError(t, c2.ClearReconnectSession())
	c3, err := NewContext(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "", c3.ReconnectSession())
}

func TestNewContext_CorruptFileStartsEmpty(t *testing.T) {
	path := tempPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not [valid toml"), 0o600))

	c, err := NewContext(path, nil)
	require.NoError(t, err)
	assert.Nil(t, c.Current())
}
