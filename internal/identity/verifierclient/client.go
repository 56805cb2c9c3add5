package verifierclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// VerifyResult is the verifier service's judgement on one assertion.
type VerifyResult struct {
	StudentID string `json:"student_id"`
	Verified  bool   `json:"verified"`
	Reason    string `json:"reason,omitempty"`
}

// Client calls the external WebAuthn verifier microservice. The
// cryptographic checks live entirely on the other side of this boundary;
// this service only consumes the resolved student reference.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. Skip short-circuits verification for local dev,
// trusting the assertion's claimed subject.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type verifyRequest struct {
	CredentialID string `json:"credential_id"`
	Assertion    string `json:"assertion"`
	Challenge    string `json:"challenge,omitempty"`
}

// VerifyAssertion submits a credential assertion and returns the student
// id the verifier bound it to.
func (c *Client) VerifyAssertion(ctx context.Context, credentialID, assertion, challenge string) (*VerifyResult, error) {
	if c.Skip {
		return &VerifyResult{StudentID: assertion, Verified: true, Reason: "verification skipped"}, nil
	}
	if credentialID == "" || assertion == "" {
		return nil, fmt.Errorf("credential id and assertion required")
	}

	body, _ := json.Marshal(verifyRequest{CredentialID: credentialID, Assertion: assertion, Challenge: challenge})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("verifier returned %d: %s", resp.StatusCode, string(b))
	}

	var out VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("verifier response decode: %w", err)
	}
	return &out, nil
}

// Health checks verifier availability.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verifier unhealthy: %d", resp.StatusCode)
	}
	return nil
}
