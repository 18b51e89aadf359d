package upstream

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"uangku/internal/metrics"
	"uangku/internal/models"
)

// LoginEnvelope is the JSON body of a login response.
type LoginEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
}

// LoginResponse keeps the status and headers because the token may arrive
// in either the Authorization or the Set-Cookie header.
type LoginResponse struct {
	StatusCode int
	Header     http.Header
	Envelope   LoginEnvelope
}

// Succeeded reports whether the API accepted the credentials.
func (r *LoginResponse) Succeeded() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300 && r.Envelope.Status == "success"
}

// Login submits credentials. Any HTTP answer is returned as a LoginResponse;
// errors are transport failures or an unreadable success body.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (*LoginResponse, error) {
	started := time.Now()
	raw, err := c.send(ctx, http.MethodPost, "/users/login", jsonHeader(), creds)
	if err != nil {
		metrics.ObserveUpstream("login", "network_error", started)
		return nil, &APIError{Kind: KindNetwork, Op: "login", Err: err}
	}

	resp := &LoginResponse{StatusCode: raw.status, Header: raw.header}
	if err := json.Unmarshal(raw.body, &resp.Envelope); err != nil && raw.ok() {
		metrics.ObserveUpstream("login", "upstream_error", started)
		return nil, &APIError{Kind: KindUpstream, Op: "login", Status: raw.status, Message: "invalid response body", Err: err}
	}

	outcome := "success"
	if !raw.ok() {
		outcome = "upstream_error"
	}
	metrics.ObserveUpstream("login", outcome, started)
	return resp, nil
}

// RegisterEnvelope is the JSON body of a registration response.
type RegisterEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Register creates an account. A non-success HTTP status is an *APIError of
// KindUpstream; a 2xx answer is decoded and returned as is.
func (c *Client) Register(ctx context.Context, creds models.Credentials) (*RegisterEnvelope, error) {
	started := time.Now()
	raw, err := c.send(ctx, http.MethodPost, "/users/register", jsonHeader(), creds)
	if err != nil {
		metrics.ObserveUpstream("register", "network_error", started)
		return nil, &APIError{Kind: KindNetwork, Op: "register", Err: err}
	}
	if !raw.ok() {
		metrics.ObserveUpstream("register", "upstream_error", started)
		return nil, &APIError{Kind: KindUpstream, Op: "register", Status: raw.status, Message: errorMessage(raw.body)}
	}

	var env RegisterEnvelope
	if err := json.Unmarshal(raw.body, &env); err != nil {
		metrics.ObserveUpstream("register", "upstream_error", started)
		return nil, &APIError{Kind: KindUpstream, Op: "register", Status: raw.status, Message: "invalid response body", Err: err}
	}
	metrics.ObserveUpstream("register", "success", started)
	return &env, nil
}
