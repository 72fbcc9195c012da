package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// stubGateway is a mock GatewayClient for tests, grounded on the upstream
// service's own mock-order fallback when gateway credentials are absent.
type stubGateway struct {
	secret        string
	webhookSecret string
}

func (s *stubGateway) CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string) (*GatewayOrder, error) {
	return &GatewayOrder{ID: "order_" + uuid.NewString(), Amount: amountMinorUnits, Currency: currency, Receipt: receipt}, nil
}

func (s *stubGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return hmacHexEqual(s.secret, orderID+"|"+paymentID, signature)
}

func (s *stubGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return hmacHexEqual(s.webhookSecret, string(body), signature)
}

func signPayload(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
