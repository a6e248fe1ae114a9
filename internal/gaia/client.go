// Package gaia talks to the ESA Gaia archive: the DataLink data server used
// for DR2 epoch photometry and the TAP service used for asynchronous ADQL
// jobs against DR1 tables.
package gaia

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultDataLinkURL is the public Gaia data server
	DefaultDataLinkURL = "https://gea.esac.esa.int/data-server"
	// DefaultTAPURL is the public Gaia TAP service
	DefaultTAPURL = "https://gea.esac.esa.int/tap-server/tap"
	// DefaultUserAgent identifies this client
	DefaultUserAgent = "gaiacurves/1.0"
	// DefaultTimeout for a single HTTP exchange
	DefaultTimeout = 60 * time.Second
	// DefaultPollInterval between job phase checks
	DefaultPollInterval = 2 * time.Second
	// DefaultJobTimeout bounds how long an async job may run
	DefaultJobTimeout = 10 * time.Minute
)

type settings struct {
	httpClient   *http.Client
	userAgent    string
	pollInterval time.Duration
	jobTimeout   time.Duration
	logger       zerolog.Logger
}

func defaultSettings() settings {
	return settings{
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		userAgent:    DefaultUserAgent,
		pollInterval: DefaultPollInterval,
		jobTimeout:   DefaultJobTimeout,
		logger:       zerolog.Nop(),
	}
}

// Option configures a DataLinkClient or TAPClient.
type Option func(*settings)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.httpClient = client
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *settings) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithPollInterval sets the delay between async job phase checks.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithJobTimeout bounds the total time Wait spends on one job.
func WithJobTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithLogger sets the logger used for job progress.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// StatusError reports an unexpected HTTP status from the archive.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status code %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status code %d: %s", e.Op, e.StatusCode, e.Body)
}

func newStatusError(op string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
}

func (s settings) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	return req, nil
}
