// Package client is a small HTTP client for the auth API. It keeps the
// session cookie in a jar, so a Login call authenticates every later request
// the same way a browser would.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// User is the API's view of the authenticated account.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// APIError carries the status code and server-provided message of a failed call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether the call was refused for lack of a session
// or bad credentials.
func (e *APIError) IsUnauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// Client talks to the auth API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the given server origin.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("init cookie jar: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Jar:     jar,
			Timeout: 15 * time.Second,
		},
	}, nil
}

// Register creates an account. The server replies with a message; the account
// stays unusable until the emailed confirmation link is followed.
func (c *Client) Register(ctx context.Context, email, password string) error {
	return c.post(ctx, "/auth/register", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
}

// Login authenticates and stores the session cookie in the jar.
func (c *Client) Login(ctx context.Context, email, password string, rememberMe bool) (*User, error) {
	var user User
	err := c.post(ctx, "/auth/login", map[string]any{
		"email":       email,
		"password":    password,
		"remember_me": rememberMe,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout revokes the current session. It succeeds even when no session is live.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/auth/logout", nil, nil)
}

// ConfirmEmail redeems a confirmation link's parameters.
func (c *Client) ConfirmEmail(ctx context.Context, userID, token string) error {
	query := url.Values{"userId": {userID}, "token": {token}}
	return c.get(ctx, "/auth/confirm-email?"+query.Encode(), nil)
}

// Me returns the account behind the current session.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, "/auth/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// AdminData fetches the role-gated payload.
func (c *Client) AdminData(ctx context.Context) (map[string]any, error) {
	var payload map[string]any
	if err := c.get(ctx, "/auth/admin-data", &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		message := strings.TrimSpace(string(data))
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
			message = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
