// Package client is a typed client for the weekwise HTTP API.
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
	"strings"
	"time"
)

// DefaultTimeout bounds a single request when the caller supplies no client.
const DefaultTimeout = 15 * time.Second

var (
	ErrUnauthorized = errors.New("client: unauthorized")
	ErrNotFound     = errors.New("client: not found")
)

// APIError is a non-2xx response decoded from the server's error payload.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%d %s: %s %v", e.StatusCode, e.Code, e.Message, e.Fields)
}

// Is lets errors.Is match ErrUnauthorized and ErrNotFound by status.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// IsCapacity reports whether err is the per-day capacity rejection.
func IsCapacity(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// Client talks to one server on behalf of one bearer credential.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New builds a client for baseURL authenticating with token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("client: base url %q must be absolute", baseURL)
	}
	c := &Client{baseURL: parsed, token: token, http: &http.Client{Timeout: DefaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateRule creates a weekly rule. Overlap warnings are returned alongside.
func (c *Client) CreateRule(ctx context.Context, dayOfWeek int, startTime, endTime string) (CreatedRule, error) {
	var out CreatedRule
	err := c.do(ctx, http.MethodPost, "/rules", createRuleRequest{DayOfWeek: dayOfWeek, StartTime: startTime, EndTime: endTime}, &out)
	return out, err
}

// ListRules returns the caller's active rules.
func (c *Client) ListRules(ctx context.Context) ([]Rule, error) {
	var out []Rule
	err := c.do(ctx, http.MethodGet, "/rules", nil, &out)
	return out, err
}

// DeleteRule deactivates a rule.
func (c *Client) DeleteRule(ctx context.Context, ruleID string) error {
	return c.do(ctx, http.MethodDelete, "/rules/"+url.PathEscape(ruleID), nil, nil)
}

// GetWeek fetches the expanded slots of the week starting at weekStart.
func (c *Client) GetWeek(ctx context.Context, weekStart string) ([]Slot, error) {
	var out []Slot
	err := c.do(ctx, http.MethodGet, "/weeks/"+url.PathEscape(weekStart), nil, &out)
	return out, err
}

// UpdateSlot overrides the times of one dated occurrence.
func (c *Client) UpdateSlot(ctx context.Context, ruleID, date, startTime, endTime string) (Exception, error) {
	var out Exception
	err := c.do(ctx, http.MethodPut, occurrencePath(ruleID, date), occurrenceRequest{StartTime: startTime, EndTime: endTime}, &out)
	return out, err
}

// DeleteSlotOccurrence cancels one dated occurrence.
func (c *Client) DeleteSlotOccurrence(ctx context.Context, ruleID, date string) (Exception, error) {
	var out Exception
	err := c.do(ctx, http.MethodDelete, occurrencePath(ruleID, date), nil, &out)
	return out, err
}

func occurrencePath(ruleID, date string) string {
	return "/rules/" + url.PathEscape(ruleID) + "/occurrences/" + url.PathEscape(date)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var payload struct {
		ErrorCode string            `json:"errorCode"`
		Message   string            `json:"message"`
		Errors    map[string]string `json:"errors"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err == nil {
		apiErr.Code = payload.ErrorCode
		if payload.Message != "" {
			apiErr.Message = payload.Message
		}
		apiErr.Fields = payload.Errors
	}
	return apiErr
}
