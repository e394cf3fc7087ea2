// Package gatewayclient calls a running Host Gateway Server over HTTP,
// mapping every transport-level failure onto the same GatewayResult shape
// the server returns on success, so callers never need a separate
// transport-error branch.
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cianaparrot/cianaparrot/internal/model"
)

// Client calls one Host Gateway Server.
type Client struct {
	baseURL string
	token   string
	bridge  string
	http    *http.Client
}

// New returns a Client targeting baseURL (e.g. "http://127.0.0.1:8787"),
// authenticating with token and always requesting execution under bridge.
func New(baseURL, token, bridge string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		bridge:  bridge,
		http:    &http.Client{Timeout: 0}, // the server enforces its own timeout
	}
}

// Execute sends a GatewayRequest and returns the decoded GatewayResult.
// Network failures, non-200 responses, and malformed bodies are all folded
// into a GatewayResult with a populated Error field rather than a Go error,
// so callers (tool implementations) have one result shape to branch on.
func (c *Client) Execute(ctx context.Context, argv []string, cwd string, timeout time.Duration) model.GatewayResult {
	req := model.GatewayRequest{
		Bridge:  c.bridge,
		Argv:    argv,
		Cwd:     cwd,
		Timeout: timeout.Seconds(),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return model.GatewayResult{Error: fmt.Sprintf("gatewayclient: marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return model.GatewayResult{Error: fmt.Sprintf("gatewayclient: build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return model.GatewayResult{Error: fmt.Sprintf("gatewayclient: request failed: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.GatewayResult{Error: fmt.Sprintf("gatewayclient: read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		msg := apiErr.Error
		if msg == "" {
			msg = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
		}
		return model.GatewayResult{Error: msg}
	}

	var result model.GatewayResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return model.GatewayResult{Error: fmt.Sprintf("gatewayclient: decode response: %v", err)}
	}
	return result
}

// Health checks the gateway's /health endpoint, returning the bridges it
// reports serving.
func (c *Client) Health(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Status  string   `json:"status"`
		Bridges []string `json:"bridges"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Bridges, nil
}
