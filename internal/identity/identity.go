// Package identity submits settlement evidence to the ChaosChain agent
// registry. Anchoring is best-effort: settlement outcomes never depend
// on it.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the hosted ChaosChain evidence API.
const DefaultBaseURL = "https://api.chaoschain.io"

// DefaultTimeout bounds one anchor round-trip.
const DefaultTimeout = 10 * time.Second

// Config configures the anchor client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the HTTP client for the evidence API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an anchor client.
func NewClient(config Config) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// AnchorRequest ties a settled payment to the agent that earned it.
type AnchorRequest struct {
	AgentID     string          `json:"agentId"`
	TxHash      string          `json:"txHash"`
	Chain       string          `json:"chain"`
	Amount      string          `json:"amount"`
	PaymentData json.RawMessage `json:"paymentData,omitempty"`
}

// AnchorResult carries the registry's proof references.
type AnchorResult struct {
	EvidenceHash  string `json:"evidenceHash"`
	ProofOfAgency string `json:"proofOfAgency"`
}

// Anchor records settlement evidence for an agent.
func (c *Client) Anchor(ctx context.Context, anchor AnchorRequest) (*AnchorResult, error) {
	body, err := json.Marshal(anchor)
	if err != nil {
		return nil, fmt.Errorf("failed to encode evidence: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evidence", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit evidence: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("evidence API returned status %d", resp.StatusCode)
	}

	var result AnchorResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode evidence response: %w", err)
	}
	return &result, nil
}
