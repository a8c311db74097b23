package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warungku/backend/internal/entity"
)

// SessionRequest describes the checkout attempt sent to the gateway when
// opening a payment session.
type SessionRequest struct {
	PaymentID     string             `json:"order_id"`
	GrossAmount   int64              `json:"gross_amount"`
	Items         []entity.OrderItem `json:"items"`
	CustomerName  string             `json:"customer_name,omitempty"`
	CustomerPhone string             `json:"customer_phone,omitempty"`
}

// Session is the gateway's answer: a widget token plus a hosted payment
// page the customer can be redirected to.
type Session struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// SessionCreator opens payment sessions with the external gateway.
type SessionCreator interface {
	CreateSession(ctx context.Context, req *SessionRequest) (*Session, error)
}

// Client is the HTTP implementation of SessionCreator.
type Client struct {
	baseURL   string
	serverKey string
	http      *http.Client
}

// NewClient creates a gateway client. The timeout bounds the synchronous
// session-creation call; on failure the caller rolls back the checkout.
func NewClient(baseURL, serverKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		serverKey: serverKey,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: payment session call failed: %v", entity.ErrDependency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: payment session call returned %d", entity.ErrDependency, resp.StatusCode)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("%w: failed to decode session response: %v", entity.ErrDependency, err)
	}
	return &session, nil
}
