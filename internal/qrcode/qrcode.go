// Package qrcode encodes and decodes the QR token embedded in a ticket
// (component C2). The token is a signed JWT carrying the ticket/user/event
// triple; its exp is tied to the event's end time rather than a fixed TTL,
// with a fallback for events whose end time isn't known at issue time.
package qrcode

import (
	"fmt"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

// defaultTTL is the fallback scan window used when no event end time is
// available at issue time.
const defaultTTL = 24 * time.Hour

// Claims is the payload of a ticket's QR token.
type Claims struct {
	TicketID string `json:"ticket_id"`
	UserID   string `json:"user_id"`
	EventID  string `json:"event_id"`
	jwt.RegisteredClaims
}

// Codec issues and parses QR tokens, signed with the same server secret
// used for access tokens but never interchangeable with one (the claim
// shapes don't overlap, so a QR token presented as a bearer token — or vice
// versa — simply fails to carry the fields the other side expects).
type Codec struct {
	secret []byte
}

func New(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Issue mints a QR token for ticketID/userID/eventID. If eventEnd is the
// zero Time, the token expires defaultTTL after issuance; otherwise it
// expires at eventEnd.
func (c *Codec) Issue(ticketID, userID, eventID string, eventEnd time.Time) (string, error) {
	now := time.Now().UTC()
	exp := eventEnd
	if exp.IsZero() {
		exp = now.Add(defaultTTL)
	}
	claims := Claims{
		TicketID: ticketID,
		UserID:   userID,
		EventID:  eventID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", apperr.System("QRSignFailed", err)
	}
	return signed, nil
}

// Parse decodes tok. The validation engine is responsible for classifying
// an ErrTokenExpired vs. other failures into the right user-facing message;
// Parse itself only reports success or a generic decode failure alongside
// whether expiry was the specific cause.
func (c *Codec) Parse(tok string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}
