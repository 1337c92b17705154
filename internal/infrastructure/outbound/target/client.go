// Package target sends fixture requests to the service under test.
package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sophialabs/fixturemock/internal/domain/fixture"
	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
)

// ErrTransport reports that a request could not be completed. Status codes,
// including 5xx, are never transport failures.
var ErrTransport = errors.New("transport failure")

// maxBodyBytes caps how much of a response body is read. Larger bodies fail
// the send rather than being compared truncated.
const maxBodyBytes = 16 << 20

var _ ports.TargetClient = (*Client)(nil)

// Client sends requests to a base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pacer      ports.Pacer
}

// NewClient creates a client for baseURL. A zero timeout means none.
func NewClient(baseURL string, timeout time.Duration, pacer ports.Pacer) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			// Redirects are part of the observed behavior.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		pacer: pacer,
	}
}

// BaseURL returns the service under test's base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Send issues req and reads the full response.
func (c *Client) Send(ctx context.Context, req fixture.ExpectedRequest) (*ports.TargetResponse, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: waiting for send slot: %v", ErrTransport, err)
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = strings.NewReader(*req.Body)
	}

	url := req.URL(c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build %s %s: %v", ErrTransport, req.Method, url, err)
	}
	for _, h := range req.Headers {
		if strings.EqualFold(h.Key, "Host") {
			httpReq.Host = h.Value
			continue
		}
		httpReq.Header.Add(h.Key, h.Value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response of %s %s: %v", ErrTransport, req.Method, url, err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("%w: response of %s %s exceeds %d bytes", ErrTransport, req.Method, url, maxBodyBytes)
	}

	return &ports.TargetResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Ping reports whether the service under test accepts connections. Any
// HTTP response counts as ready.
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("%w: build ping request: %v", ErrTransport, err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: ping %s: %v", ErrTransport, c.baseURL, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
