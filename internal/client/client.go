// Package client is the terminal front end of the health assistant.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/healthbot/healthbot/internal/core"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
}

type HistoryEntry struct {
	ID        int64     `json:"id"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatResult struct {
	Classification *core.Classification `json:"classification"`
	Response       string               `json:"response"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) Register(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	return c.do(ctx, http.MethodPost, "/auth/register", "", body, nil)
}

func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *Client) Chat(ctx context.Context, bearer, query string) (*ChatResult, error) {
	var out ChatResult
	if err := c.do(ctx, http.MethodPost, "/healthbot", bearer, map[string]string{"query": query}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) History(ctx context.Context, bearer string) (map[string][]HistoryEntry, error) {
	var out struct {
		History map[string][]HistoryEntry `json:"history"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat_history/", bearer, nil, &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

func (c *Client) Entry(ctx context.Context, bearer string, id int64) (*HistoryEntry, error) {
	var out HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/chat_history/"+strconv.FormatInt(id, 10), bearer, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteHistory(ctx context.Context, bearer string) error {
	return c.do(ctx, http.MethodDelete, "/chat_history/delete/", bearer, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unable to connect to the server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Detail string `json:"detail"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil {
			apiErr.Detail = e.Detail
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unexpected response format: %w", err)
	}
	return nil
}
