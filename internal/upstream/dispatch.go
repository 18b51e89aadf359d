package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"uangku/internal/logging"
	"uangku/internal/metrics"
	"uangku/internal/models"
)

// Call issues one bearer-authenticated request and decodes a successful JSON
// response into out (skipped when out is nil). Without a token it fails with
// ErrNoToken and never touches the network. There is no retry.
func (c *Client) Call(ctx context.Context, token, method, path string, body, out any) error {
	return c.call(ctx, "call", token, method, path, body, out)
}

func (c *Client) call(ctx context.Context, op, token, method, path string, body, out any) error {
	started := time.Now()
	if token == "" {
		metrics.ObserveUpstream(op, "no_token", started)
		return ErrNoToken
	}

	header := jsonHeader()
	header.Set("Authorization", "Bearer "+token)

	raw, err := c.send(ctx, method, path, header, body)
	if err != nil {
		metrics.ObserveUpstream(op, "network_error", started)
		return &APIError{Kind: KindNetwork, Op: op, Err: err}
	}

	if !raw.ok() {
		metrics.ObserveUpstream(op, "upstream_error", started)
		apiErr := &APIError{Kind: KindUpstream, Op: op, Status: raw.status, Message: errorMessage(raw.body)}
		logging.Ctx(ctx).Warn().Str("op", op).Int("status", raw.status).Str("detail", apiErr.Message).
			Msg("upstream call failed")
		return apiErr
	}

	if out != nil && len(raw.body) > 0 {
		if err := json.Unmarshal(raw.body, out); err != nil {
			metrics.ObserveUpstream(op, "upstream_error", started)
			return &APIError{Kind: KindUpstream, Op: op, Status: raw.status, Message: "invalid response body", Err: err}
		}
	}

	metrics.ObserveUpstream(op, "success", started)
	return nil
}

type listEnvelope struct {
	Data []models.Transaction `json:"data"`
}

// ListTransactions returns the caller's transactions for one window.
func (c *Client) ListTransactions(ctx context.Context, token string, w models.Window) ([]models.Transaction, error) {
	var env listEnvelope
	if err := c.call(ctx, "list_transactions", token, http.MethodGet, "/transactions/get/"+string(w), nil, &env); err != nil {
		return nil, fmt.Errorf("list %s transactions: %w", w, err)
	}
	if env.Data == nil {
		return []models.Transaction{}, nil
	}
	return env.Data, nil
}

// CreateTransaction creates a transaction for the caller.
func (c *Client) CreateTransaction(ctx context.Context, token string, in models.NewTransaction) error {
	if err := c.call(ctx, "create_transaction", token, http.MethodPost, "/transactions/create", in, nil); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// DeleteTransaction deletes one of the caller's transactions.
func (c *Client) DeleteTransaction(ctx context.Context, token string, id int64) error {
	path := "/transactions/delete/" + strconv.FormatInt(id, 10)
	if err := c.call(ctx, "delete_transaction", token, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	return nil
}
