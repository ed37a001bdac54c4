// Package webpay implements payment.Gateway against a Webpay Plus style
// REST API: transactions are created with a POST and committed with a PUT
// on the token returned at creation time.
package webpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lienzolab/storefront/internal/payment"
)

const (
	headerAPIKeyID     = "Tbk-Api-Key-Id"
	headerAPIKeySecret = "Tbk-Api-Key-Secret"

	transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"
)

// DefaultTimeout bounds every gateway call so a hung checkout fails after
// 30 seconds instead of holding the request open indefinitely.
const DefaultTimeout = 30 * time.Second

// Config holds the commerce credentials and endpoint for one Webpay
// integration environment.
type Config struct {
	BaseURL      string
	CommerceCode string
	APIKey       string
	Timeout      time.Duration
}

// Client is the HTTP implementation of payment.Gateway.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ payment.Gateway = (*Client)(nil)

// New builds a Client. A zero cfg.Timeout falls back to DefaultTimeout.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type createRequest struct {
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"return_url"`
}

type createResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type commitResponse struct {
	BuyOrder          string `json:"buy_order"`
	SessionID         string `json:"session_id"`
	Amount            int64  `json:"amount"`
	ResponseCode      int    `json:"response_code"`
	Status            string `json:"status"`
	AuthorizationCode string `json:"authorization_code"`
	TransactionDate   string `json:"transaction_date"`
}

type errorResponse struct {
	ErrorMessage string `json:"error_message"`
}

func (c *Client) Create(ctx context.Context, buyOrder, sessionID string, amount int64, returnURL string) (*payment.CreateResponse, error) {
	body, err := json.Marshal(createRequest{
		BuyOrder:  buyOrder,
		SessionID: sessionID,
		Amount:    amount,
		ReturnURL: returnURL,
	})
	if err != nil {
		return nil, fmt.Errorf("webpay: marshal create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+transactionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webpay: build create request: %w", err)
	}

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var res createResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("webpay: decode create response %q: %w", truncate(raw), payment.ErrProtocol)
	}
	if res.Token == "" || res.URL == "" {
		return nil, fmt.Errorf("webpay: create response missing token or url (%q): %w", truncate(raw), payment.ErrProtocol)
	}

	return &payment.CreateResponse{Token: res.Token, URL: res.URL}, nil
}

func (c *Client) Commit(ctx context.Context, token string) (*payment.CommitResponse, error) {
	url := c.cfg.BaseURL + transactionsPath + "/" + token

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return nil, fmt.Errorf("webpay: build commit request: %w", err)
	}

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var res commitResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("webpay: decode commit response %q: %w", truncate(raw), payment.ErrProtocol)
	}
	if res.BuyOrder == "" {
		return nil, fmt.Errorf("webpay: commit response missing buy_order (%q): %w", truncate(raw), payment.ErrProtocol)
	}

	return &payment.CommitResponse{
		BuyOrder:          res.BuyOrder,
		SessionID:         res.SessionID,
		Amount:            res.Amount,
		ResponseCode:      res.ResponseCode,
		Status:            res.Status,
		AuthorizationCode: res.AuthorizationCode,
		TransactionDate:   res.TransactionDate,
	}, nil
}

// do sends the request with credentials attached and maps transport and
// gateway-level failures onto the classified payment errors.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKeyID, c.cfg.CommerceCode)
	req.Header.Set(headerAPIKeySecret, c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("webpay: %s %s: %w", req.Method, req.URL.Path, payment.ErrTimeout)
		}
		return nil, fmt.Errorf("webpay: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("webpay: read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusUnprocessableEntity, resp.StatusCode == http.StatusNotFound:
		// Webpay answers 422 for aborted/expired transactions and 404 for
		// unknown tokens. Both mean the payment session is no longer
		// committable and the customer has to start over.
		return nil, fmt.Errorf("webpay: %s (%s): %w", gatewayMessage(raw), resp.Status, payment.ErrSessionExpired)
	default:
		return nil, fmt.Errorf("webpay: unexpected status %s (%q): %w", resp.Status, truncate(raw), payment.ErrProtocol)
	}
}

func gatewayMessage(raw []byte) string {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.ErrorMessage != "" {
		return e.ErrorMessage
	}
	return "transaction not committable"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// truncate keeps logged response bodies to a diagnosable size.
func truncate(raw []byte) string {
	const max = 256
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
