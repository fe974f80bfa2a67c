package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/remind/internal/model"
)

// HTTPRemote talks to the /api/events endpoints with a bearer token.
type HTTPRemote struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPRemote(baseURL, token string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPRemote{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

func (h *HTTPRemote) ListEvents(ctx context.Context, since time.Time) ([]model.Event, error) {
	path := "/api/events"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}
	var events []model.Event
	if err := h.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (h *HTTPRemote) Apply(ctx context.Context, c Change) (*model.Event, error) {
	switch c.Op {
	case OpCreate:
		var out model.Event
		if err := h.do(ctx, http.MethodPost, "/api/events", c.Event, &out); err != nil {
			return nil, err
		}
		return &out, nil
	case OpUpdate:
		var out model.Event
		if err := h.do(ctx, http.MethodPut, fmt.Sprintf("/api/events/%d", c.Event.ID), c.Event, &out); err != nil {
			return nil, err
		}
		return &out, nil
	case OpDelete:
		err := h.do(ctx, http.MethodDelete, fmt.Sprintf("/api/events/%d", c.Event.ID), nil, nil)
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	default:
		return nil, fmt.Errorf("unknown change op %q", c.Op)
	}
}

// Ping checks GET /health.
func (h *HTTPRemote) Ping(ctx context.Context) error {
	return h.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (h *HTTPRemote) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Remind-Source", model.SourceSync)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
