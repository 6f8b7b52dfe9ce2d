package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"timeoff-scheduler-backend/internal/apperr"
	"timeoff-scheduler-backend/internal/model"
	"timeoff-scheduler-backend/internal/parse"
	"timeoff-scheduler-backend/internal/timeoff"
)

// Header names shared with the API.
const (
	HeaderAdminToken     = "X-Admin-Token"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Fetcher reads aggregated views from the backing service.
type Fetcher interface {
	FetchMonth(ctx context.Context, year int, month time.Month, role model.Role) (*timeoff.MonthView, error)
	FetchDate(ctx context.Context, date string, role model.Role) (*timeoff.DateDetail, error)
}

// Client talks to the timeoffd HTTP API.
type Client struct {
	baseURL    string
	client     *http.Client
	adminToken string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// WithAdminToken sends the admin token on every call.
func WithAdminToken(token string) ClientOption {
	return func(c *Client) { c.adminToken = token }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Error  string            `json:"error"`
	Kind   apperr.Kind       `json:"kind"`
	Fields map[string]string `json:"fields"`
}

// FetchMonth fetches the availability of every day in a month.
func (c *Client) FetchMonth(ctx context.Context, year int, month time.Month, role model.Role) (*timeoff.MonthView, error) {
	m, err := parse.NewMonth(year, month)
	if err != nil {
		return nil, apperr.NewValidation("month", err.Error())
	}
	q := url.Values{}
	q.Set("month", m.String())
	if role != "" {
		q.Set("role", string(role))
	}

	var view timeoff.MonthView
	if err := c.do(ctx, http.MethodGet, "/api/availability?"+q.Encode(), nil, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// FetchDate fetches one date's availability and requests.
func (c *Client) FetchDate(ctx context.Context, date string, role model.Role) (*timeoff.DateDetail, error) {
	path := "/api/dates/" + url.PathEscape(date)
	if role != "" {
		path += "?role=" + url.QueryEscape(string(role))
	}

	var detail timeoff.DateDetail
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Submit creates a request. An empty idempotencyKey gets a fresh one, so
// retrying with the returned key never creates a duplicate.
func (c *Client) Submit(ctx context.Context, in timeoff.SubmitInput, idempotencyKey string) (*timeoff.RequestView, string, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	headers := map[string]string{HeaderIdempotencyKey: idempotencyKey}

	var out timeoff.RequestView
	if err := c.do(ctx, http.MethodPost, "/api/requests", in, headers, &out); err != nil {
		return nil, idempotencyKey, err
	}
	return &out, idempotencyKey, nil
}

// Approve approves a pending request. Needs the admin token.
func (c *Client) Approve(ctx context.Context, id string) (*timeoff.RequestView, error) {
	var out timeoff.RequestView
	if err := c.do(ctx, http.MethodPost, "/api/requests/"+url.PathEscape(id)+"/approve", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reject rejects a pending request. Needs the admin token.
func (c *Client) Reject(ctx context.Context, id string) (*timeoff.RequestView, error) {
	var out timeoff.RequestView
	if err := c.do(ctx, http.MethodPost, "/api/requests/"+url.PathEscape(id)+"/reject", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a request, proving ownership with secret unless the client
// carries the admin token.
func (c *Client) Delete(ctx context.Context, id, secret string) error {
	var body any
	if secret != "" {
		body = map[string]string{"secret": secret}
	}
	return c.do(ctx, http.MethodDelete, "/api/requests/"+url.PathEscape(id), body, nil, nil)
}

// SetLimit sets the cap for (date, role). Needs the admin token.
func (c *Client) SetLimit(ctx context.Context, date string, role model.Role, maxAllowed int) (*model.CapacityLimit, error) {
	body := map[string]any{"date": date, "role": role, "max_allowed": maxAllowed}

	var out model.CapacityLimit
	if err := c.do(ctx, http.MethodPut, "/api/limits", body, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, headers map[string]string, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		req.Header.Set(HeaderAdminToken, c.adminToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &apperr.TransientStoreError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperr.TransientStoreError{Op: "read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(data, &eb) != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(data))
			if eb.Error == "" {
				eb.Error = http.StatusText(resp.StatusCode)
			}
		}
		return apperr.FromStatus(resp.StatusCode, eb.Kind, eb.Error, eb.Fields)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &apperr.TransientStoreError{Op: "decode response", Err: fmt.Errorf("status %d: %w", resp.StatusCode, err)}
	}
	return nil
}
