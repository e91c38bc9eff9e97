// Package directory wraps the site identity service that owns role
// membership and entity metadata. The orchestrator treats it as a read-only
// collaborator: role resolution and metadata lookup both go through here.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub008/internal/application/port"
)

// ClientConfig holds configuration for the directory client
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is the HTTP adapter for the directory service.
type Client struct {
	config ClientConfig
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a new directory client
func NewClient(config ClientConfig, logger *zap.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type memberResponse struct {
	Members []struct {
		UserID string  `json:"user_id"`
		Weight float64 `json:"weight"`
	} `json:"members"`
}

// Resolve returns the users holding a role, optionally scoped to a site.
// An empty member list is a valid answer, not an error.
func (c *Client) Resolve(ctx context.Context, role, siteScope string) ([]port.Candidate, error) {
	endpoint := fmt.Sprintf("%s/api/v1/roles/%s/members", c.config.BaseURL, url.PathEscape(role))
	if siteScope != "" {
		endpoint += "?site=" + url.QueryEscape(siteScope)
	}

	var resp memberResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to resolve role %q: %w", role, err)
	}

	candidates := make([]port.Candidate, 0, len(resp.Members))
	for _, m := range resp.Members {
		weight := m.Weight
		if weight <= 0 {
			weight = 1
		}
		candidates = append(candidates, port.Candidate{UserID: m.UserID, Weight: weight})
	}
	return candidates, nil
}

// Lookup fetches the metadata fields recorded for a business entity.
func (c *Client) Lookup(ctx context.Context, entityType, entityID string) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s/api/v1/entities/%s/%s/metadata",
		c.config.BaseURL, url.PathEscape(entityType), url.PathEscape(entityID))

	var metadata map[string]any
	if err := c.get(ctx, endpoint, &metadata); err != nil {
		return nil, fmt.Errorf("failed to look up metadata for %s:%s: %w", entityType, entityID, err)
	}
	return metadata, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Directory request failed",
			zap.String("endpoint", endpoint),
			zap.Int("status_code", resp.StatusCode))
		return fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Verify interface compliance
var (
	_ port.RoleResolver   = (*Client)(nil)
	_ port.MetadataLookup = (*Client)(nil)
)
