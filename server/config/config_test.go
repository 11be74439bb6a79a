package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotchat/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 1500, cfg.AIReplyDelayMS)
	assert.Equal(t, 1500*time.Millisecond, cfg.AIReplyDelay())
	assert.Equal(t, 500, cfg.MaxMessageLength)
	assert.False(t, cfg.RequireVerification)
	require.Len(t, cfg.DefaultTags, 1)
	assert.Equal(t, model.DefaultAITag, cfg.DefaultTags[0].Name)
	assert.True(t, cfg.DefaultTags[0].EnableAIResponse)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
ai_reply_delay_ms: 250
require_verification: true
rooms:
  - id: cafe-1
    name: Corner Cafe
    location_name: Main St
    tags:
      - name: menu_question
        display_name: Menu question
        enable_ai_response: true
        enable_threading: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 250, cfg.AIReplyDelayMS)
	assert.True(t, cfg.RequireVerification)
	assert.Equal(t, 500, cfg.MaxMessageLength, "unset keys keep defaults")

	require.Len(t, cfg.Rooms, 1)
	room := cfg.Room("cafe-1")
	assert.Equal(t, "Corner Cafe", room.Name)
	assert.Equal(t, "Main St", room.LocationName)
	require.Len(t, room.AvailableTags, 1)
	assert.Equal(t, "menu_question", room.AvailableTags[0].Name)
	assert.True(t, room.AvailableTags[0].EnableAIResponse)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `addr: ":9090"`)

	t.Setenv("SPOTCHAT_ADDR", ":7070")
	t.Setenv("SPOTCHAT_AI_REPLY_DELAY_MS", "100")
	t.Setenv("SPOTCHAT_REQUIRE_VERIFICATION", "true")
	t.Setenv("SPOTCHAT_MAX_MESSAGE_LENGTH", "280")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, 100, cfg.AIReplyDelayMS)
	assert.True(t, cfg.RequireVerification)
	assert.Equal(t, 280, cfg.MaxMessageLength)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, `max_message_length: -1`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `ai_reply_delay_ms: -5`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `addr: "["`))
	assert.NoError(t, err, "addr content is not validated beyond presence")

	_, err = Load(writeConfig(t, `addr: [not yaml`))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRoomFallsBackToDefaultCatalog(t *testing.T) {
	cfg := Default()

	room := cfg.Room("never-configured")
	assert.Equal(t, "never-configured", room.ID)
	assert.Equal(t, "Room never-configured", room.Name)
	require.Len(t, room.AvailableTags, 1)
	assert.Equal(t, model.DefaultAITag, room.AvailableTags[0].Name)
}

func TestRoomWithoutTagsInheritsDefaults(t *testing.T) {
	cfg := Default()
	cfg.Rooms = []RoomConfig{{ID: "lobby", Name: "Lobby"}}

	room := cfg.Room("lobby")
	assert.Equal(t, "Lobby", room.Name)
	assert.Equal(t, cfg.DefaultTags, room.AvailableTags)
}
