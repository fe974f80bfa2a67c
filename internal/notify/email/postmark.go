// Package email sends transactional mail through the Postmark API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const defaultBaseURL = "https://api.postmarkapp.com"

var ErrNotConfigured = errors.New("email client not configured")

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL points the client at a Postmark-compatible API.
func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(u, "/")
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     defaultBaseURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Configured() bool {
	return c.serverToken != "" && c.fromEmail != ""
}

// Message is one outgoing email. At least one of TextBody or HTMLBody
// should be set.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
	Tag      string
}

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HtmlBody      string `json:"HtmlBody,omitempty"`
	TextBody      string `json:"TextBody,omitempty"`
	Tag           string `json:"Tag,omitempty"`
	MessageStream string `json:"MessageStream"`
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
	MessageID string `json:"MessageID"`
}

// APIError is a non-2xx response from Postmark.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("postmark API error: status %d code %d: %s", e.Status, e.Code, e.Message)
}

// Send delivers msg and returns the Postmark message id.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if msg.To == "" {
		return "", fmt.Errorf("email has no recipient")
	}

	body, err := json.Marshal(postmarkEmail{
		From:          c.fromEmail,
		To:            msg.To,
		Subject:       msg.Subject,
		HtmlBody:      msg.HTMLBody,
		TextBody:      msg.TextBody,
		Tag:           msg.Tag,
		MessageStream: "outbound",
	})
	if err != nil {
		return "", fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	var out postmarkResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode >= 400 {
		return "", &APIError{Status: resp.StatusCode, Code: out.ErrorCode, Message: out.Message}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode postmark response: %w", decodeErr)
	}
	return out.MessageID, nil
}
