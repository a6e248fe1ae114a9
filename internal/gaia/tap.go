package gaia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// abortTimeout bounds the best-effort abort sent after a timeout or cancel.
const abortTimeout = 10 * time.Second

// TAPClient runs asynchronous ADQL queries against a UWS-style TAP service.
type TAPClient struct {
	settings
	baseURL string
	// submitClient does not follow the 303 returned on job creation.
	submitClient *http.Client
}

// NewTAPClient creates a client for the TAP service rooted at baseURL.
func NewTAPClient(baseURL string, opts ...Option) *TAPClient {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	submit := *s.httpClient
	submit.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &TAPClient{
		settings:     s,
		baseURL:      strings.TrimRight(baseURL, "/"),
		submitClient: &submit,
	}
}

// Submit creates an async job for adql with CSV output and starts it. The
// returned job is in state JobSubmitted.
func (c *TAPClient) Submit(ctx context.Context, adql string) (*Job, error) {
	if strings.TrimSpace(adql) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	form := url.Values{}
	form.Set("REQUEST", "doQuery")
	form.Set("LANG", "ADQL")
	form.Set("FORMAT", "csv")
	form.Set("PHASE", "RUN")
	form.Set("QUERY", adql)

	endpoint := c.baseURL + "/async"
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.submitClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusSeeOther, http.StatusFound, http.StatusCreated, http.StatusOK:
	default:
		return nil, newStatusError("submit job", resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("submit job: response carries no job location (status %d)", resp.StatusCode)
	}
	jobURL, err := resp.Request.URL.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("submit job: bad job location %q: %w", location, err)
	}

	c.logger.Debug().Str("job", jobURL.String()).Msg("tap job submitted")
	return &Job{URL: strings.TrimRight(jobURL.String(), "/"), State: JobSubmitted, Phase: PhasePending}, nil
}

// Wait polls the job phase until the service reports a terminal phase, the
// job timeout elapses, or ctx ends. Polls are spaced by the configured poll
// interval. Whenever Wait gives up on a job that may still be running (poll
// failure, timeout or cancellation) the job is aborted on the service, best
// effort.
func (c *TAPClient) Wait(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("%w: nil job", ErrJobState)
	}
	if err := job.transition(JobPolling); err != nil {
		return err
	}

	pollCtx, cancel := context.WithTimeout(ctx, c.jobTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)

	for {
		if err := limiter.Wait(pollCtx); err != nil {
			return c.stop(ctx, job, err)
		}

		phase, err := c.phase(pollCtx, job)
		if err != nil {
			if pollCtx.Err() != nil {
				return c.stop(ctx, job, err)
			}
			_ = job.transition(JobFailed)
			c.abort(ctx, job)
			return fmt.Errorf("poll job phase: %w", err)
		}
		job.Polls++

		if phase != job.Phase {
			c.logger.Debug().Str("job", job.URL).Str("phase", phase).Int("polls", job.Polls).Msg("tap job phase")
		}
		job.Phase = phase

		switch phase {
		case PhaseCompleted:
			return job.transition(JobCompleted)
		case PhaseError:
			_ = job.transition(JobFailed)
			return fmt.Errorf("%w: %s", ErrJobFailed, job.URL)
		case PhaseAborted:
			_ = job.transition(JobFailed)
			return fmt.Errorf("%w: %s", ErrJobAborted, job.URL)
		}
	}
}

// stop moves a job that ran out of time (or whose caller went away) into its
// terminal state and asks the service to abort it.
func (c *TAPClient) stop(ctx context.Context, job *Job, cause error) error {
	var result error
	if ctx.Err() != nil {
		_ = job.transition(JobCancelled)
		result = fmt.Errorf("tap job %s cancelled: %w", job.URL, ctx.Err())
	} else {
		_ = job.transition(JobTimedOut)
		result = fmt.Errorf("%w after %s (%d polls): %v", ErrJobTimeout, c.jobTimeout, job.Polls, cause)
	}
	c.abort(ctx, job)
	return result
}

// abort sends PHASE=ABORT on a context detached from ctx's cancellation, so
// a caller that went away still releases the job on the service.
func (c *TAPClient) abort(ctx context.Context, job *Job) {
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := c.Abort(abortCtx, job); err != nil {
		c.logger.Warn().Err(err).Str("job", job.URL).Msg("tap job abort failed")
	}
}

func (c *TAPClient) phase(ctx context.Context, job *Job) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, job.URL+"/phase", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", newStatusError("job phase", resp)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return strings.ToUpper(strings.TrimSpace(string(body))), nil
}

// Results streams the CSV result of a completed job into w.
func (c *TAPClient) Results(ctx context.Context, job *Job, w io.Writer) (int64, error) {
	if job == nil || job.State != JobCompleted {
		return 0, fmt.Errorf("%w: results requested before completion", ErrJobState)
	}

	req, err := c.newRequest(ctx, http.MethodGet, job.URL+"/results/result", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, newStatusError("job results", resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read results: %w", err)
	}
	return n, nil
}

// Abort asks the service to stop the job.
func (c *TAPClient) Abort(ctx context.Context, job *Job) error {
	form := url.Values{}
	form.Set("PHASE", "ABORT")

	req, err := c.newRequest(ctx, http.MethodPost, job.URL+"/phase", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.submitClient.Do(req)
	if err != nil {
		return fmt.Errorf("abort job: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return newStatusError("abort job", resp)
	}
	return nil
}

// IsTimeout reports whether err came from a job exceeding its timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrJobTimeout)
}
