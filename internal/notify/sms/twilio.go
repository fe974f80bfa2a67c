// Package sms sends text messages through the Twilio Messages API.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultBaseURL = "https://api.twilio.com"

var ErrNotConfigured = errors.New("sms client not configured")

type Client struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithBaseURL(u string) Option {
	return func(cl *Client) { cl.baseURL = strings.TrimRight(u, "/") }
}

func NewClient(accountSID, authToken, from string, opts ...Option) *Client {
	c := &Client{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Configured() bool {
	return c.accountSID != "" && c.authToken != "" && c.from != ""
}

type messageResponse struct {
	SID     string `json:"sid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// APIError is a non-2xx response from Twilio.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio API error: status %d code %d: %s", e.Status, e.Code, e.Message)
}

// Send texts body to the E.164 number to and returns the message SID.
func (c *Client) Send(ctx context.Context, to, body string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if to == "" {
		return "", fmt.Errorf("sms has no recipient")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	var out messageResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode >= 400 {
		return "", &APIError{Status: resp.StatusCode, Code: out.Code, Message: out.Message}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode twilio response: %w", decodeErr)
	}
	return out.SID, nil
}
