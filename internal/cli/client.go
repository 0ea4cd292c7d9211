package cli

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

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"github.com/haukened/navguard/internal/guard/domain"
	"github.com/haukened/navguard/internal/guard/gateways/httpapi"
)

// Client talks to a running navguardd over its HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// APIError is a non-2xx reply from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("navguardd replied %d", e.Status)
	}
	return fmt.Sprintf("navguardd replied %d: %s", e.Status, e.Message)
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid server address %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) List(ctx context.Context, key domain.ListKey) (domain.List, error) {
	var reply httpapi.ListReply
	if err := c.do(ctx, http.MethodGet, "/api/lists/"+url.PathEscape(string(key)), nil, &reply); err != nil {
		return nil, err
	}
	return reply.Entries, nil
}

func (c *Client) Add(ctx context.Context, key domain.ListKey, site string) (domain.List, error) {
	var reply httpapi.ListReply
	if err := c.do(ctx, http.MethodPost, "/api/lists/"+url.PathEscape(string(key)), httpapi.AddRequest{Site: site}, &reply); err != nil {
		return nil, err
	}
	return reply.Entries, nil
}

func (c *Client) Remove(ctx context.Context, key domain.ListKey, index int) (domain.List, error) {
	var reply httpapi.ListReply
	path := "/api/lists/" + url.PathEscape(string(key)) + "/" + strconv.Itoa(index)
	if err := c.do(ctx, http.MethodDelete, path, nil, &reply); err != nil {
		return nil, err
	}
	return reply.Entries, nil
}

// Whitelist sends the same message the block page sends.
func (c *Client) Whitelist(ctx context.Context, site string) error {
	var reply httpapi.MessageReply
	msg := httpapi.Message{Type: httpapi.MessageWhitelist, Site: site}
	if err := c.do(ctx, http.MethodPost, "/api/message", msg, &reply); err != nil {
		return err
	}
	if !reply.Success {
		return &APIError{Status: http.StatusOK, Message: reply.Error}
	}
	return nil
}

// Decide asks the daemon how it would treat a navigation to rawURL.
func (c *Client) Decide(ctx context.Context, rawURL, title string) (domain.Decision, error) {
	var d domain.Decision
	err := c.do(ctx, http.MethodPost, "/api/decide", httpapi.DecideRequest{URL: rawURL, Title: title}, &d)
	return d, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact navguardd at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	c.logger.Debug("api call", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: gjson.GetBytes(raw, "error").String()}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
