// Package transport implements the HTTP client for the remote top-peers
// sync service.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/rankd/internal/rank"
)

const (
	defaultTimeout    = 30 * time.Second
	readyPollInterval = 2 * time.Second
)

// Client communicates with the sync service. It satisfies rank.Transport.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the sync service at baseURL. token may be
// empty when the service requires no auth.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// GetTopPeers performs the combined periodic fetch.
func (c *Client) GetTopPeers(ctx context.Context, req rank.TopPeersRequest) (rank.TopPeersResponse, error) {
	var resp rank.TopPeersResponse
	if err := c.post(ctx, "/v1/top-peers", req, &resp); err != nil {
		return rank.TopPeersResponse{}, fmt.Errorf("fetching top peers: %w", err)
	}
	return resp, nil
}

type resetRequest struct {
	Category string    `json:"category"`
	Peer     rank.Peer `json:"peer"`
}

// ResetRating asks the service to forget one peer's rating.
func (c *Client) ResetRating(ctx context.Context, category string, peer rank.Peer) error {
	if err := c.post(ctx, "/v1/top-peers/reset", resetRequest{Category: category, Peer: peer}, nil); err != nil {
		return fmt.Errorf("resetting rating: %w", err)
	}
	return nil
}

// WaitReady polls the service's health endpoint until it answers or ctx is
// cancelled. Used to drive the manager's first-sync signal.
func (c *Client) WaitReady(ctx context.Context) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
		if err != nil {
			return fmt.Errorf("creating health request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
