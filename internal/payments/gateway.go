package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrGatewayUnavailable covers network failures, timeouts and 5xx responses
// from the payment gateway. Transient: the payment row stays pending and any
// trigger may retry.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Gateway statuses as reported by the provider's status-query endpoint.
const (
	GatewayStatusCompleted = "completed"
	GatewayStatusPending   = "pending"
	GatewayStatusFailed    = "failed"
	GatewayStatusCancelled = "cancelled"
)

type InitiateResult struct {
	Status        string `json:"status"`
	TransactionID string `json:"external_transaction_id,omitempty"`
}

type StatusResult struct {
	PaymentStatus string `json:"payment_status"`
	TransactionID string `json:"external_transaction_id,omitempty"`
}

// Gateway is the outbound payment provider contract.
type Gateway interface {
	Initiate(ctx context.Context, orderID, buyer string, amount int64) (*InitiateResult, error)
	QueryStatus(ctx context.Context, orderID string) (*StatusResult, error)
}

// HTTPGateway talks JSON to the provider over HTTP with a bounded timeout.
// The shared secret authenticates us to the provider; the provider uses the
// same key on its inbound callbacks.
type HTTPGateway struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewHTTPGateway(baseURL, secretKey string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ Gateway = (*HTTPGateway)(nil)

func (g *HTTPGateway) Initiate(ctx context.Context, orderID, buyer string, amount int64) (*InitiateResult, error) {
	body, _ := json.Marshal(map[string]any{
		"order_id":       orderID,
		"buyer_identity": buyer,
		"amount":         amount,
	})
	var out InitiateResult
	if err := g.post(ctx, "/initiate", body, &out); err != nil {
		return nil, err
	}
	if out.Status == "error" {
		return nil, fmt.Errorf("gateway rejected initiate for order %s", orderID)
	}
	return &out, nil
}

func (g *HTTPGateway) QueryStatus(ctx context.Context, orderID string) (*StatusResult, error) {
	body, _ := json.Marshal(map[string]string{"order_id": orderID})
	var out StatusResult
	if err := g.post(ctx, "/status", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Key", g.secretKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway returned invalid JSON: %w", err)
	}
	return nil
}
