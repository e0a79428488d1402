package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sagecrypto "github.com/e2ee-core/relay/crypto"
)

// relayClient is the thin REST client over a relay's HTTPHandler surface
// (§6): upload/fetch identity keys and create the session row a pair of
// users share, all under the same bearer token used for the WebSocket
// upgrade.
type relayClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newRelayClient(baseURL, token string) *relayClient {
	return &relayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *relayClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// UploadKey publishes userID's public identity JWK to the relay.
func (c *relayClient) UploadKey(ctx context.Context, userID string, pub sagecrypto.JWK) error {
	jwkBytes, err := json.Marshal(pub)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}
	req := map[string]interface{}{
		"userId":               userID,
		"publicIdentityKeyJWK": json.RawMessage(jwkBytes),
	}
	var out map[string]string
	return c.do(ctx, http.MethodPost, "/keys/upload", req, &out)
}

// GetKey fetches peerID's uploaded public identity JWK.
func (c *relayClient) GetKey(ctx context.Context, peerID string) (sagecrypto.JWK, error) {
	var out struct {
		PublicIdentityKeyJWK sagecrypto.JWK `json:"publicIdentityKeyJWK"`
		KeyHash              string         `json:"keyHash"`
	}
	if err := c.do(ctx, http.MethodGet, "/keys/"+peerID, nil, &out); err != nil {
		return sagecrypto.JWK{}, err
	}
	return out.PublicIdentityKeyJWK, nil
}

// CreateSession ensures the relay has a SessionRow for (selfID, peerID).
// The relay itself derives the same deterministic session id C4 installs
// locally; this call exists so §6's REST surface is exercised even though
// the client computes kep.SessionID independently for its own handshake.
func (c *relayClient) CreateSession(ctx context.Context, selfID, peerID string) error {
	req := map[string]string{"userId1": selfID, "userId2": peerID}
	return c.do(ctx, http.MethodPost, "/sessions", req, nil)
}

// DeactivateUser asks the relay to cascade-delete every session row
// userID participates in, the server-side half of the deactivation
// cascade whose client-side half is session.Store.DeleteForUser.
func (c *relayClient) DeactivateUser(ctx context.Context, userID string) (int, error) {
	var out struct {
		SessionsRemoved int `json:"sessionsRemoved"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/"+userID+"/deactivate", nil, &out); err != nil {
		return 0, err
	}
	return out.SessionsRemoved, nil
}
