package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/crease/internal/adapters/http/auth"
)

// ErrAPI is wrapped by every non-2xx response.
var ErrAPI = errors.New("api error")

// APIError is a decoded error response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// client calls the scoring API as one official.
type client struct {
	base  string
	http  *http.Client
	actor auth.Actor
	token string
}

const tokenTTL = time.Hour

func newClient(cfg *Config, actor auth.Actor) (*client, error) {
	c := &client{base: cfg.BaseURL, http: &http.Client{Timeout: cfg.Timeout}, actor: actor}
	if cfg.JWTSecret != "" {
		tok, err := auth.New(cfg.JWTSecret, cfg.JWTIssuer).Issue(actor, tokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issue token for %s: %w", actor.ID, err)
		}
		c.token = tok
	}
	return c, nil
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else {
		req.Header.Set(auth.HeaderActorID, c.actor.ID)
		req.Header.Set(auth.HeaderActorRole, string(c.actor.Role))
		if c.actor.TeamID != "" {
			req.Header.Set(auth.HeaderActorTeam, c.actor.TeamID)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return resp.StatusCode, apiErr
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}
