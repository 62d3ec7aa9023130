package liveaudio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/echoplay/echoplay/go/clients"
	"github.com/echoplay/echoplay/go/internal/models"
)

// Client provisions live audio rooms and mints per-user join tokens
// against the media service. Room names are generated locally so a match
// survives a media-service outage: provisioning degrades to the name and
// the room is created lazily when the first client connects.
type Client struct {
	base   *clients.BaseClient
	apiKey string
}

type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

func NewClient(cfg Config) *Client {
	c := &Client{apiKey: cfg.APIKey}
	if cfg.BaseURL != "" {
		c.base = clients.NewBaseClient(cfg.BaseURL)
		c.base.SetHeader("Authorization", "Bearer "+cfg.APIKey)
		c.base.SetHeader("Content-Type", "application/json")
		c.base.SetTimeout(10 * time.Second)
	}
	return c
}

type createRoomRequest struct {
	Name            string `json:"name"`
	EmptyTimeoutSec int    `json:"empty_timeout_sec"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// CreateRoom names and provisions a room for the match. The name is
// authoritative even when the media service call fails.
func (c *Client) CreateRoom(ctx context.Context, mode models.Mode) (string, error) {
	name := fmt.Sprintf("echoplay-%s-%s", strings.ToLower(string(mode)), uuid.New())
	if c.base == nil {
		return name, nil
	}

	body, err := json.Marshal(createRoomRequest{Name: name, EmptyTimeoutSec: 300})
	if err != nil {
		return "", fmt.Errorf("failed to marshal room request: %w", err)
	}
	if _, err := c.base.Post(ctx, "/v1/rooms", bytes.NewReader(body)); err != nil {
		log.Warn().Err(err).Str("room", name).Msg("room provisioning degraded to name only")
	}
	return name, nil
}

// IssueJoinToken mints a join token scoped to one room and user. Without
// a configured media service it hands out a development token.
func (c *Client) IssueJoinToken(ctx context.Context, roomName string, userID uuid.UUID) (string, error) {
	if c.base == nil {
		return "dev-" + uuid.NewString(), nil
	}

	body, err := json.Marshal(map[string]string{"user_id": userID.String()})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token request: %w", err)
	}
	resp, err := c.base.Post(ctx, "/v1/rooms/"+roomName+"/tokens", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to issue join token: %w", err)
	}

	var out tokenResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	return out.Token, nil
}
