// Package client implements the COROS Training Hub API client: login,
// paginated activity listing and per-activity export downloads.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/corosback/logging"
	"github.com/corosback/models"
)

const (
	loginPath    = "/account/login"
	queryPath    = "/activity/query"
	downloadPath = "/activity/detail/download"
)

// maxErrorBodySize caps how much of an error response body is read back
// for diagnostics.
const maxErrorBodySize = 64 * 1024

// The API fronts a browser app and rejects requests that do not look like
// one, so every request carries the web client's headers.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "en-US,en;q=0.9",
	"Origin":          "https://training.coros.com",
	"Referer":         "https://training.coros.com/",
}

// Session is the authenticated credential for one run. It is returned by
// Login and passed explicitly to every later call; the client never holds
// one itself, so separate runs or accounts cannot leak into each other.
type Session struct {
	AccessToken string
	UserID      string
}

func (s Session) apply(req *http.Request) {
	req.Header.Set("accesstoken", s.AccessToken)
	req.Header.Set("yfheader", fmt.Sprintf(`{"userId":%q}`, s.UserID))
}

// Config carries the tunables for a Client.
type Config struct {
	BaseURL           string
	PageSize          int
	Timeout           time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	RequestsPerSecond float64
}

// Client talks to the COROS API. Safe for concurrent use; the rate
// limiter and circuit breaker are shared across goroutines.
type Client struct {
	baseURL       string
	http          *http.Client
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker[*http.Response]
	pageSize      int
	retryAttempts int
	retryDelay    time.Duration
}

// New creates a Client. Zero config fields fall back to sane defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://teameuapi.coros.com"
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 200 {
		cfg.PageSize = 200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 1 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 4
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "coros-api",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Stay above one activity's full retry budget so a single
			// flaky download cannot open the circuit on its own.
			return counts.ConsecutiveFailures >= 8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})

	return &Client{
		baseURL:       cfg.BaseURL,
		http:          &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		breaker:       breaker,
		pageSize:      cfg.PageSize,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
	}
}

// do sends a request with rate limiting and bounded exponential backoff.
// Transport failures, 5xx and 429 are retried (429 honoring Retry-After);
// anything else is classified and returned immediately. The request is
// rebuilt per attempt so POST bodies replay correctly.
func (c *Client) do(ctx context.Context, op string, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to build %s request: %w", op, err)
		}
		for k, v := range browserHeaders {
			req.Header.Set(k, v)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			return c.http.Do(req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, &models.NetworkError{Op: op, Err: err}
			}
			lastErr = &models.NetworkError{Op: op, Err: err}
			if attempt < c.retryAttempts {
				if waitErr := c.backoff(ctx, attempt, ""); waitErr != nil {
					return nil, waitErr
				}
			}
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			retryAfter := resp.Header.Get("Retry-After")
			_ = resp.Body.Close()
			lastErr = &models.NetworkError{Op: op, Err: fmt.Errorf("http %d", resp.StatusCode)}
			// No backoff after the last attempt; the error surfaces now.
			if attempt < c.retryAttempts {
				logging.Debug().Str("op", op).Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("retrying request")
				if waitErr := c.backoff(ctx, attempt, retryAfter); waitErr != nil {
					return nil, waitErr
				}
			}
			continue

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			_ = resp.Body.Close()
			return nil, &models.AuthError{Message: fmt.Sprintf("%s rejected with http %d", op, resp.StatusCode)}

		default:
			body := readBodyForError(resp.Body)
			_ = resp.Body.Close()
			return nil, &models.APIError{
				HTTPStatus: resp.StatusCode,
				Message:    fmt.Sprintf("%s failed: %s", op, string(body)),
			}
		}
	}

	return nil, lastErr
}

// backoff waits retryDelay * 2^attempt, or the server's Retry-After
// seconds when present. Cancellable through the context.
func (c *Client) backoff(ctx context.Context, attempt int, retryAfter string) error {
	delay := c.retryDelay * time.Duration(1<<uint(attempt))
	if retryAfter != "" {
		if d, err := time.ParseDuration(retryAfter + "s"); err == nil {
			delay = d
		}
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// getJSON performs an authenticated GET and decodes the response body.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, session Session, out any) error {
	reqURL := c.baseURL + path + "?" + query.Encode()
	resp, err := c.do(ctx, "GET "+path, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, err
		}
		session.apply(req)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp.Body, out)
}

// postJSON performs an unauthenticated POST with a JSON body.
func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s body: %w", path, err)
	}

	resp, err := c.do(ctx, "POST "+path, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp.Body, out)
}

// decodeEnvelope decodes a response body. A body that does not parse as
// the expected shape is an API contract change, not a transient fault.
func decodeEnvelope(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return &models.APIError{Message: "undecodable response body", Err: err}
	}
	return nil
}

// checkResult maps the envelope result code to the error taxonomy.
func checkResult(result, message string) error {
	switch result {
	case models.ResultOK:
		return nil
	case models.ResultTokenInvalid:
		return &models.AuthError{Message: fmt.Sprintf("access token is invalid: %s", message)}
	default:
		if message == "" {
			message = "unknown error"
		}
		return &models.APIError{Code: result, Message: message}
	}
}

func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}
