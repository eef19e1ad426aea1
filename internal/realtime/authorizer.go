package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// AuthResponse is the signature returned for a private channel.
type AuthResponse struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// Authorizer signs private channel subscriptions through the REST API.
// The bearer token can be swapped at any time; each request uses the latest.
type Authorizer struct {
	endpoint string
	client   *http.Client

	mu    sync.RWMutex
	token string
}

func NewAuthorizer(endpoint string, client *http.Client) *Authorizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Authorizer{endpoint: endpoint, client: client}
}

func (a *Authorizer) Endpoint() string {
	return a.endpoint
}

// SetToken replaces the bearer token used by later requests.
func (a *Authorizer) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

func (a *Authorizer) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// Authorize asks the API to sign socketID's subscription to channel.
func (a *Authorizer) Authorize(ctx context.Context, socketID, channel string) (AuthResponse, error) {
	form := url.Values{}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channel)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return AuthResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("authorize %s: %w", channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return AuthResponse{}, fmt.Errorf("authorize %s: %w: status %d: %s", channel, ErrUnauthorized, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AuthResponse{}, fmt.Errorf("authorize %s: decode: %w", channel, err)
	}
	if out.Auth == "" {
		return AuthResponse{}, fmt.Errorf("authorize %s: %w: empty signature", channel, ErrUnauthorized)
	}
	return out, nil
}
