// Package config loads server configuration from a YAML file merged with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"spotchat/model"
)

// RoomConfig describes one pre-configured room and its tag catalog.
type RoomConfig struct {
	ID           string          `yaml:"id"`
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description"`
	LocationName string          `yaml:"location_name"`
	Tags         []model.RoomTag `yaml:"tags"`
}

type Config struct {
	Addr                string          `yaml:"addr"`
	AIReplyDelayMS      int             `yaml:"ai_reply_delay_ms"`
	RequireVerification bool            `yaml:"require_verification"`
	MaxMessageLength    int             `yaml:"max_message_length"`
	DefaultTags         []model.RoomTag `yaml:"default_tags"`
	Rooms               []RoomConfig    `yaml:"rooms"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Addr:             ":8080",
		AIReplyDelayMS:   1500,
		MaxMessageLength: 500,
		DefaultTags: []model.RoomTag{
			{
				Name:             model.DefaultAITag,
				DisplayName:      "Location question",
				Color:            "#2563eb",
				EnableAIResponse: true,
				EnableThreading:  true,
			},
		},
	}
}

// Load reads the YAML file at path (skipped when empty) on top of the
// defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.Addr == "" {
		return Config{}, fmt.Errorf("addr must not be empty")
	}
	if cfg.MaxMessageLength <= 0 {
		return Config{}, fmt.Errorf("max_message_length must be positive, got %d", cfg.MaxMessageLength)
	}
	if cfg.AIReplyDelayMS < 0 {
		return Config{}, fmt.Errorf("ai_reply_delay_ms must not be negative, got %d", cfg.AIReplyDelayMS)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SPOTCHAT_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("SPOTCHAT_AI_REPLY_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AIReplyDelayMS = n
		}
	}
	if v := os.Getenv("SPOTCHAT_REQUIRE_VERIFICATION"); v != "" {
		c.RequireVerification = v == "1" || v == "true" || v == "TRUE"
	}
	if v := os.Getenv("SPOTCHAT_MAX_MESSAGE_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxMessageLength = n
		}
	}
}

// AIReplyDelay returns the responder delay as a duration.
func (c Config) AIReplyDelay() time.Duration {
	return time.Duration(c.AIReplyDelayMS) * time.Millisecond
}

// Room resolves the metadata for a room id. Unknown rooms get the default tag
// catalog, so every scanned QR code yields a usable room.
func (c Config) Room(roomID string) model.Room {
	for _, rc := range c.Rooms {
		if rc.ID == roomID {
			tags := rc.Tags
			if len(tags) == 0 {
				tags = c.DefaultTags
			}
			return model.Room{
				ID:            rc.ID,
				Name:          rc.Name,
				Description:   rc.Description,
				LocationName:  rc.LocationName,
				AvailableTags: tags,
			}
		}
	}
	return model.Room{
		ID:            roomID,
		Name:          "Room " + roomID,
		AvailableTags: c.DefaultTags,
	}
}
