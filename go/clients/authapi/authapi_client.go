package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echoplay/echoplay/go/clients"
	"github.com/echoplay/echoplay/go/internal/match/gateway"
)

// Client validates bearer credentials against the auth API. It implements
// gateway.CredentialVerifier.
type Client struct {
	// The base client's header set is shared, so requests serialize to
	// keep each token on its own call.
	mu   sync.Mutex
	base *clients.BaseClient
}

type Config struct {
	BaseURL string `yaml:"base_url"`
}

func NewClient(cfg Config) *Client {
	base := clients.NewBaseClient(cfg.BaseURL)
	base.SetTimeout(5 * time.Second)
	return &Client{base: base}
}

type validateResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

// Verify resolves a token to the user behind it. Any non-2xx response
// from the auth API rejects the credential.
func (c *Client) Verify(ctx context.Context, token string) (gateway.Identity, error) {
	c.mu.Lock()
	c.base.SetHeader("Authorization", "Bearer "+token)
	resp, err := c.base.Get(ctx, "/v1/credentials/validate")
	c.mu.Unlock()
	if err != nil {
		return gateway.Identity{}, fmt.Errorf("failed to validate credential: %w", err)
	}

	var out validateResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return gateway.Identity{}, fmt.Errorf("failed to parse validation response: %w", err)
	}
	if out.UserID == uuid.Nil {
		return gateway.Identity{}, fmt.Errorf("credential resolved to no user")
	}
	return gateway.Identity{UserID: out.UserID, Role: out.Role}, nil
}
