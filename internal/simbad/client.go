package simbad

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public SIMBAD TAP service
	DefaultBaseURL = "https://simbad.cds.unistra.fr/simbad/sim-tap"
	// DefaultUserAgent identifies this client
	DefaultUserAgent = "gaiacurves/1.0"
	// DefaultTimeout for HTTP requests
	DefaultTimeout = 30 * time.Second
	// maxBodySize caps the identifier listing response
	maxBodySize = 4 << 20
)

// Client queries the SIMBAD TAP service for cross-identifiers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a new SIMBAD client. baseURL is the TAP service root
// (without the trailing /sync).
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: DefaultUserAgent,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// QueryObjectIDs returns every identifier SIMBAD lists for the object named
// name, in the order the service returns them. An unknown name yields an
// empty slice and no error.
//
// The request always carries Cache-Control: no-cache; identifier mappings are
// only authoritative from the live service.
func (c *Client) QueryObjectIDs(ctx context.Context, name string) ([]string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("object name cannot be empty")
	}

	params := url.Values{}
	params.Set("REQUEST", "doQuery")
	params.Set("LANG", "ADQL")
	params.Set("FORMAT", "json")
	params.Set("QUERY", crossIDQuery(name))

	requestURL := fmt.Sprintf("%s/sync?%s", c.baseURL, params.Encode())

	body, err := c.do(ctx, requestURL)
	if err != nil {
		return nil, fmt.Errorf("query object ids for %q: %w", name, err)
	}

	var resp tapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse object ids for %q: %w", name, err)
	}

	return resp.identifiers(), nil
}

// crossIDQuery lists all identifiers sharing an object reference with name.
func crossIDQuery(name string) string {
	escaped := strings.ReplaceAll(name, "'", "''")
	return "SELECT id2.id FROM ident AS id1 JOIN ident AS id2 USING(oidref) WHERE id1.id = '" + escaped + "'"
}

func (c *Client) do(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	return body, nil
}

// StatusError reports a non-200 answer from SIMBAD.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
