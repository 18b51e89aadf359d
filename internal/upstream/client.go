// Package upstream talks to the remote account API: login and registration,
// and the bearer-authenticated transaction endpoints.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"uangku/internal/logging"
	"uangku/internal/metrics"
)

const (
	breakerName = "account-api"

	// maxErrorBody caps how much of a failed response is read for diagnostics.
	maxErrorBody = 64 << 10
	// maxBody caps successful response bodies.
	maxBody = 8 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL string
	// Timeout of zero keeps the transport default.
	Timeout        time.Duration
	BreakerEnabled bool
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client is the remote account API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewClient creates a client for the API rooted at opts.BaseURL
// (for example http://host:3001/api).
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
	}

	if opts.BreakerEnabled {
		metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
		c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        breakerName,
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < 10 {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
			IsExcluded: func(err error) bool {
				return errors.Is(err, errCallerGone)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("circuit breaker state change")
				metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			},
		})
	}
	return c
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

var (
	// errServerStatus marks a 5xx so the breaker counts it as a failure.
	errServerStatus = errors.New("server error status")
	// errCallerGone marks an exchange cut short by the caller's own context.
	// The breaker leaves it out of its counts.
	errCallerGone = errors.New("request abandoned by caller")
)

// rawResponse is a fully read HTTP response.
type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

func (r *rawResponse) ok() bool {
	return r.status >= 200 && r.status < 300
}

// send performs exactly one HTTP exchange. A nil response means the request
// never produced an HTTP status (transport failure or open breaker).
func (c *Client) send(ctx context.Context, method, path string, header http.Header, body any) (*rawResponse, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	exchange := func() (*rawResponse, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		limit := int64(maxBody)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			limit = maxErrorBody
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		return &rawResponse{status: resp.StatusCode, header: resp.Header, body: data}, nil
	}

	if c.breaker == nil {
		return exchange()
	}

	var raw *rawResponse
	_, err = c.breaker.Execute(func() (struct{}, error) {
		r, err := exchange()
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, fmt.Errorf("%w: %w", errCallerGone, err)
			}
			return struct{}{}, err
		}
		raw = r
		if r.status >= 500 {
			return struct{}{}, errServerStatus
		}
		return struct{}{}, nil
	})
	if raw != nil {
		return raw, nil
	}
	return nil, err
}

// jsonHeader returns the headers sent with every API call.
func jsonHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	return h
}

// errorMessage extracts a diagnostic message from a failed response body:
// the JSON "message" or "error" field when present, the trimmed text otherwise.
func errorMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
