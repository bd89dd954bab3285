// Package client talks to the hub over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/adwski/walkie-talkie/backend/model"
)

const (
	defaultRequestTimeout = 10 * time.Second

	// a minute more than the hub holds a poll
	DefaultPollTimeout = time.Hour + time.Minute
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRequest      = errors.New("hub request failed")
)

// StatusError is returned for any non-success reply of the hub.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hub replied %d: %s", e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Code == http.StatusUnauthorized
}

type Config struct {
	HTTPClient  *http.Client
	HubURL      string
	PollTimeout time.Duration
}

type Client struct {
	http        *http.Client
	base        *url.URL
	pollTimeout time.Duration
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.HubURL)
	if err != nil {
		return nil, fmt.Errorf("invalid hub url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Client{
		http:        httpClient,
		base:        base,
		pollTimeout: pollTimeout,
	}, nil
}

func (c *Client) Register(ctx context.Context, name, joinToken string) (*model.RegisterResponse, error) {
	var resp model.RegisterResponse
	if _, err := c.do(ctx, http.MethodPost, "/register", joinToken, &model.RegisterRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Unregister(ctx context.Context, token string) error {
	_, err := c.do(ctx, http.MethodPost, "/unregister", token, nil, nil)
	return err
}

func (c *Client) Send(ctx context.Context, token, to, content string) (*model.SendResponse, error) {
	var resp model.SendResponse
	if _, err := c.do(ctx, http.MethodPost, "/send", token, &model.SendRequest{To: to, Content: content}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Poll blocks until the hub delivers messages. It returns nil messages when
// the hub answered with no content; the caller is expected to poll again.
// An error matching ErrUnauthorized means the participant was disconnected.
func (c *Client) Poll(ctx context.Context, token string) ([]model.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	var resp model.PollResponse
	code, err := c.send(ctx, http.MethodGet, "/poll", token, nil, &resp)
	if err != nil {
		return nil, err
	}
	if code == http.StatusNoContent {
		return nil, nil
	}
	return resp.Messages, nil
}

func (c *Client) Users(ctx context.Context) ([]string, error) {
	var resp model.UsersResponse
	if _, err := c.do(ctx, http.MethodGet, "/users", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()
	return c.send(ctx, method, path, token, body, out)
}

func (c *Client) send(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Join(ErrRequest, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), rdr)
	if err != nil {
		return 0, errors.Join(ErrRequest, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errors.Join(ErrRequest, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.Join(ErrRequest, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		var errResp model.ErrorResponse
		_ = json.Unmarshal(raw, &errResp)
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Message: errResp.Error}
	}
	if out != nil && len(raw) > 0 {
		if err = json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, errors.Join(ErrRequest, fmt.Errorf("invalid JSON response: %w", err))
		}
	}
	return resp.StatusCode, nil
}
