// Package warehouse calls the warehouse/location service.
package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/platform/config"
)

const (
	defaultTimeout = 10 * time.Second
	apiKeyHeader   = "X-API-Key"
	maxErrorBody   = 4 << 10
)

var (
	// ErrUnavailable wraps transport failures and 5xx responses.
	ErrUnavailable = errors.New("warehouse: service unavailable")
	// ErrRejected wraps 4xx responses and envelopes reporting status 0.
	ErrRejected = errors.New("warehouse: request rejected")
)

// Client talks to the warehouse service using the caller's bearer token and the service API key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option customises Client behaviour.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// NewClient constructs a client from configuration. Requests are traced through otelhttp.
func NewClient(cfg config.WarehouseConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("warehouse: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type envelope struct {
	Status          int             `json:"status"`
	Type            string          `json:"type"`
	ResponseMessage string          `json:"responseMessage"`
	Data            json.RawMessage `json:"data"`
}

type warehousePayload struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type locationPayload struct {
	ID          string  `json:"_id"`
	MaxQty      float64 `json:"maxQty"`
	QtyReserved float64 `json:"qtyReserved"`
}

type reservationPayload struct {
	LocationID string  `json:"locationId"`
	Quantity   float64 `json:"quantity"`
}

// ActiveWarehouses lists the warehouses currently accepting stock.
func (c *Client) ActiveWarehouses(ctx context.Context, token string) ([]domain.Warehouse, error) {
	var payload []warehousePayload
	if err := c.do(ctx, http.MethodGet, token, nil, &payload, "warehouses", "active"); err != nil {
		return nil, err
	}
	out := make([]domain.Warehouse, 0, len(payload))
	for _, w := range payload {
		if id := strings.TrimSpace(w.ID); id != "" {
			out = append(out, domain.Warehouse{ID: id, Name: strings.TrimSpace(w.Name)})
		}
	}
	return out, nil
}

// LocationsByIDs returns capacity for each requested location.
func (c *Client) LocationsByIDs(ctx context.Context, token string, ids []string) ([]domain.LocationCapacity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var payload []locationPayload
	body := map[string]any{"ids": ids}
	if err := c.do(ctx, http.MethodPost, token, body, &payload, "locations", "by-ids"); err != nil {
		return nil, err
	}
	out := make([]domain.LocationCapacity, 0, len(payload))
	for _, loc := range payload {
		out = append(out, domain.LocationCapacity{ID: loc.ID, MaxQty: loc.MaxQty, QtyReserved: loc.QtyReserved})
	}
	return out, nil
}

// AddQuantityToLocations books the reserved quantities into their locations.
func (c *Client) AddQuantityToLocations(ctx context.Context, token string, reservations []domain.LocationReservation) error {
	if len(reservations) == 0 {
		return nil
	}
	items := make([]reservationPayload, 0, len(reservations))
	for _, r := range reservations {
		items = append(items, reservationPayload{LocationID: r.LocationID, Quantity: r.Quantity})
	}
	return c.do(ctx, http.MethodPost, token, map[string]any{"reservations": items}, nil, "locations", "add-quantity")
}

func (c *Client) do(ctx context.Context, method, token string, body any, out any, path ...string) error {
	if c == nil {
		return fmt.Errorf("%w: client not configured", ErrUnavailable)
	}
	endpoint, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s %s status %d: %s", ErrUnavailable, method, endpoint, resp.StatusCode, describe(env, raw))
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: %s %s status %d: %s", ErrRejected, method, endpoint, resp.StatusCode, describe(env, raw))
	case decodeErr != nil:
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, decodeErr)
	case env.Status != 1:
		return fmt.Errorf("%w: %s", ErrRejected, describe(env, raw))
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrUnavailable, err)
	}
	return nil
}

func describe(env envelope, raw []byte) string {
	if msg := strings.TrimSpace(env.ResponseMessage); msg != "" {
		return msg
	}
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return "no response body"
}
