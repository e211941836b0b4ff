// Package rest is the request/response fallback path to the chat backend.
// It is used to bulk-load state and to deliver writes whenever the relay
// transport is not connected. Identity is attached explicitly to every
// call; no session cookie is assumed at this layer.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/deskbase/chatd/internal/model"
)

const defaultTimeout = 30 * time.Second

// Client talks to the chat backend's REST endpoints.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// NewClient creates a fallback client for the given backend base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is returned for non-success backend responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// ListChats returns the chat list for an identity.
func (c *Client) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	var chats []model.Chat
	err := c.do(ctx, http.MethodGet, "/api/chats", nil, url.Values{"userId": {userID}}, &chats)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// ListMessages returns one page of a chat's history, newest page first on
// the server side with limit/offset paging.
func (c *Client) ListMessages(ctx context.Context, userID, chatID string, limit, offset int) ([]model.Message, error) {
	q := url.Values{
		"userId": {userID},
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	var msgs []model.Message
	err := c.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(chatID)+"/messages", nil, q, &msgs)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// ListContacts returns the directory of identities available to start a
// chat with, excluding the calling identity.
func (c *Client) ListContacts(ctx context.Context, userID string) ([]model.Participant, error) {
	var contacts []model.Participant
	err := c.do(ctx, http.MethodGet, "/api/users", nil, url.Values{"excludeId": {userID}}, &contacts)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

// CreateChat creates a chat of the given kind with the given participants.
func (c *Client) CreateChat(ctx context.Context, userID string, kind model.ChatKind, participantIDs []string) (model.Chat, error) {
	body := map[string]any{
		"type":           kind,
		"participantIds": participantIDs,
	}
	var chat model.Chat
	err := c.do(ctx, http.MethodPost, "/api/chats", body, url.Values{"userId": {userID}}, &chat)
	if err != nil {
		return model.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// SendMessage delivers a message through the backend and returns the
// server-confirmed entity.
func (c *Client) SendMessage(ctx context.Context, userID, chatID, content, kind string) (model.Message, error) {
	body := map[string]any{
		"content": content,
		"type":    kind,
	}
	var msg model.Message
	err := c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/messages", body, url.Values{"userId": {userID}}, &msg)
	if err != nil {
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// MarkRead marks every message in a chat as read by the identity.
func (c *Client) MarkRead(ctx context.Context, userID, chatID string) error {
	err := c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/read", nil, url.Values{"userId": {userID}}, nil)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
