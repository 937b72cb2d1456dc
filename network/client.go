// Package network talks to the Library of Babel over HTTP. Client
// implements storage.TextStore: Put searches for a page containing the
// text and returns its location, Get browses a location and returns the
// page text.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bitfsorg/libbabel-go/storage"
)

const (
	searchPath = "/search.cgi"
	browsePath = "/book.cgi"

	// maxResponseSize bounds a response body read into memory.
	maxResponseSize = 4 << 20
)

// Client is an HTTP client for a Babel store endpoint.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

var _ storage.TextStore = (*Client)(nil)

// NewClient creates a client for the given configuration. Idle connections
// are pooled and reused across calls.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		userAgent: ua,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
	}
}

// Put searches for text and returns the location of the page holding it.
// The text must be a valid page: only alphabet symbols, at most
// storage.MaxPageSize long.
func (c *Client) Put(ctx context.Context, text string) (storage.Address, error) {
	if err := storage.ValidateText(text, storage.MaxPageSize); err != nil {
		return storage.Address{}, err
	}
	body, err := c.post(ctx, searchPath, url.Values{"find": {text}})
	if err != nil {
		return storage.Address{}, err
	}
	return parseLocation(body)
}

// Get browses the page at addr and returns its text.
func (c *Client) Get(ctx context.Context, addr storage.Address) (string, error) {
	if err := addr.Validate(); err != nil {
		return "", err
	}
	form := url.Values{
		"hex":    {addr.Hex},
		"wall":   {strconv.Itoa(addr.Wall)},
		"shelf":  {strconv.Itoa(addr.Shelf)},
		"volume": {strconv.Itoa(addr.Volume)},
		"page":   {strconv.Itoa(addr.Page)},
	}
	body, err := c.post(ctx, browsePath, form)
	if err != nil {
		return "", err
	}
	return parseTextblock(body)
}

// Ping checks that the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("network: create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
	return checkStatus(resp)
}

// post sends a form and returns the response body.
func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("network: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: timeout: %w", ErrConnectionFailed, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrConnectionFailed, err)
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrInvalidResponse, maxResponseSize)
	}
	return body, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: HTTP %d: %s", ErrConnectionFailed, resp.StatusCode, string(snippet))
	}
	return nil
}
