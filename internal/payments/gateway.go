package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/retry"
)

// GatewayOrder is the subset of a gateway-created order this codebase
// needs back.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
}

// GatewayClient is the C5 external-gateway boundary. The concrete
// implementation talks to a Razorpay-compatible HTTP API; tests use a stub.
type GatewayClient interface {
	CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string) (*GatewayOrder, error)
	VerifySignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

// HTTPGateway implements GatewayClient against a real payment gateway over
// HTTP Basic auth, the way the upstream service's own gateway integration
// does it. Calls are retried with the shared backoff policy on transient
// network failures.
type HTTPGateway struct {
	BaseURL         string
	KeyID           string
	KeySecret       string
	WebhookSecret   string
	HTTPClient      *http.Client
}

func NewHTTPGateway(baseURL, keyID, keySecret, webhookSecret string) *HTTPGateway {
	return &HTTPGateway{
		BaseURL:       baseURL,
		KeyID:         keyID,
		KeySecret:     keySecret,
		WebhookSecret: webhookSecret,
		HTTPClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *HTTPGateway) CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string) (*GatewayOrder, error) {
	body, err := json.Marshal(map[string]any{
		"amount":   amountMinorUnits,
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return nil, apperr.System("GatewayOrderEncodeFailed", err)
	}

	var out GatewayOrder
	err = retry.Do(ctx, isTransientHTTPError, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/orders", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth(g.KeyID, g.KeySecret)

		resp, err := g.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("gateway returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			return apperr.New(apperr.CategoryPayment, "GatewayOrderRejected", fmt.Sprintf("gateway returned %d", resp.StatusCode), "payment gateway rejected the order")
		}
		var decoded struct {
			ID       string `json:"id"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Receipt  string `json:"receipt"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return err
		}
		out = GatewayOrder{ID: decoded.ID, Amount: decoded.Amount, Currency: decoded.Currency, Receipt: decoded.Receipt}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CategoryPayment, "GatewayOrderFailed", err, "could not reach payment gateway")
	}
	return &out, nil
}

// VerifySignature checks a client-supplied order_id/payment_id/signature
// triple against HMAC-SHA256(key_secret, order_id + "|" + payment_id), in
// constant time.
func (g *HTTPGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return hmacHexEqual(g.KeySecret, orderID+"|"+paymentID, signature)
}

// VerifyWebhookSignature checks a raw webhook body against
// HMAC-SHA256(webhook_secret, body), in constant time.
func (g *HTTPGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return hmacHexEqual(g.WebhookSecret, string(body), signature)
}

func hmacHexEqual(secret, payload, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// isTransientHTTPError treats network failures and 5xx as worth retrying;
// a *apperr.Error means the gateway responded with a definite rejection,
// which a retry won't fix.
func isTransientHTTPError(err error) bool {
	if err == nil {
		return false
	}
	var appErr *apperr.Error
	return !errors.As(err, &appErr)
}
