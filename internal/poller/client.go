package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"repairshop-backend/internal/dto"
)

// Client talks to one chat API surface. BaseURL carries the full prefix
// (".../api/storefront/v1" or ".../api/admin/v1"); both surfaces share the
// same path shapes under it. BearerToken authenticates console calls,
// ChatToken authenticates widget calls.
type Client struct {
	BaseURL     string
	HTTPClient  *http.Client
	BearerToken string
	ChatToken   string
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) ResolveSession(ctx context.Context, req dto.ResolveSessionRequest) (dto.ResolveSessionResponse, error) {
	var resp dto.ResolveSessionResponse
	err := c.do(ctx, http.MethodPost, "/chat/session", req, &resp)
	return resp, err
}

func (c *Client) SendMessage(ctx context.Context, sessionID, body string) (dto.SendMessageResponse, error) {
	var resp dto.SendMessageResponse
	path := fmt.Sprintf("/chat/sessions/%s/messages", sessionID)
	err := c.do(ctx, http.MethodPost, path, dto.SendMessageRequest{Body: body}, &resp)
	return resp, err
}

func (c *Client) ListSessionMessages(ctx context.Context, sessionID string) (dto.ListChatMessagesResponse, error) {
	var resp dto.ListChatMessagesResponse
	path := fmt.Sprintf("/chat/sessions/%s/messages", sessionID)
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

func (c *Client) ListSessions(ctx context.Context) (dto.ListSessionsResponse, error) {
	var resp dto.ListSessionsResponse
	err := c.do(ctx, http.MethodGet, "/chat/sessions", nil, &resp)
	return resp, err
}

func (c *Client) MarkSessionRead(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/chat/sessions/%s/read", sessionID)
	return c.do(ctx, http.MethodPatch, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.ChatToken != "" {
		req.Header.Set("X-Chat-Token", c.ChatToken)
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(res.Body).Decode(&apiErr)
		if apiErr.Message != "" {
			return fmt.Errorf("%s %s: %d %s", method, path, res.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, res.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
