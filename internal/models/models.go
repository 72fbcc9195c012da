// Package models defines all the domain types and data-transfer objects
// (DTOs) for the ticketing API.
//
// Keeping the types in one place means every other package imports them
// without creating circular dependencies: events, registration, payments,
// validation, points, and social all need these structs, so none of them
// can own the definitions.
package models

import "time"

// Role is a distinct string type so the compiler catches mistakes like
// passing the wrong string where a role is expected.
type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// User represents an account. PasswordHash is never serialised to JSON even
// if a handler forgets to filter it manually.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsPrivate    bool      `json:"is_private"`
	Bio          string    `json:"bio,omitempty"`
	PictureURL   string    `json:"picture_url,omitempty"`
	StravaLink   string    `json:"strava_link,omitempty"`
	InstagramID  string    `json:"instagram_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Event is a fitness activity that users can register and pay for.
type Event struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	City             string    `json:"city"`
	Venue            string    `json:"venue"`
	StartAt          time.Time `json:"start_at"`
	EndAt            time.Time `json:"end_at"`
	PriceMinorUnits  int64     `json:"price_minor_units"`
	IsActive         bool      `json:"is_active"`
	RequiresApproval bool      `json:"requires_approval"`

	// RegistrationOpen gates RegisterFree/CreateOrder independently of
	// IsActive — an event can stay visible after registration closes.
	RegistrationOpen bool `json:"registration_open"`

	BannerURL        string `json:"banner_url,omitempty"`
	CoordinateLat    string `json:"coordinate_lat,omitempty"`
	CoordinateLong   string `json:"coordinate_long,omitempty"`
	AddressURL       string `json:"address_url,omitempty"`
	OrganizerName    string `json:"organizer_name,omitempty"`
	OrganizerLogoURL string `json:"organizer_logo_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired reports whether at least one hour has passed since end_at.
// Ticket QR tokens expire at end_at itself, so a scan after end_at already
// fails as an expired token before this check is reached.
func (e Event) IsExpired(now time.Time) bool {
	return !e.EndAt.Add(time.Hour).After(now)
}

// IsFree reports whether the event requires no payment to register.
func (e Event) IsFree() bool { return e.PriceMinorUnits == 0 }

// FeaturedSlotName identifies one of the two named featured-event slots.
type FeaturedSlotName string

const (
	FeaturedSlot1 FeaturedSlotName = "featured_1"
	FeaturedSlot2 FeaturedSlotName = "featured_2"
)

// FeaturedSlots is the named-slot model for the homepage spotlight. List
// projects it to a compatibility 0-2 element slice for read endpoints.
type FeaturedSlots struct {
	Featured1 *string `json:"featured_1"`
	Featured2 *string `json:"featured_2"`
}

func (f FeaturedSlots) List() []string {
	var out []string
	if f.Featured1 != nil && *f.Featured1 != "" {
		out = append(out, *f.Featured1)
	}
	if f.Featured2 != nil && *f.Featured2 != "" {
		out = append(out, *f.Featured2)
	}
	return out
}

// TicketKind distinguishes a free registration from a paid one — paid
// tickets carry order/payment references in Meta, free ones don't.
type TicketKind string

const (
	TicketFree TicketKind = "free"
	TicketPaid TicketKind = "paid"
)

// TicketMeta is the kind-specific sub-document of a Ticket.
type TicketMeta struct {
	Kind      TicketKind `json:"kind"`
	Amount    int64      `json:"amount,omitempty"`
	OrderID   string     `json:"order_id,omitempty"`
	PaymentID string     `json:"payment_id,omitempty"`
}

// ValidationEvent is one entry of a ticket's append-only validation history.
// Device and Operator are optional pass-through strings from the scanning
// client — not validated beyond length.
type ValidationEvent struct {
	Ts            time.Time `json:"ts"`
	Device        string    `json:"device,omitempty"`
	Operator      string    `json:"operator,omitempty"`
	PointsAwarded bool      `json:"points_awarded,omitempty"`
}

// Ticket is the entry a user holds for one event. IsValidated flips exactly
// once, guarded by a database compare-and-set — see internal/validation.
type Ticket struct {
	ID                string            `json:"id"`
	EventID           string            `json:"event_id"`
	UserID            string            `json:"user_id"`
	QRToken           string            `json:"qr_token"`
	IssuedAt          time.Time         `json:"issued_at"`
	IsValidated       bool              `json:"is_validated"`
	ValidatedAt       *time.Time        `json:"validated_at,omitempty"`
	ValidationHistory []ValidationEvent `json:"validation_history"`
	Meta              TicketMeta        `json:"meta"`
}

// OrderStatus tracks a PaymentOrder through the gateway lifecycle.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderSuccess    OrderStatus = "success"
	OrderFailed     OrderStatus = "failed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

// PaymentOrder is created before the gateway checkout starts. Receipt is the
// idempotency key the gateway echoes back on every payment for this order.
type PaymentOrder struct {
	ID               string      `json:"id"`
	GatewayOrderID   string      `json:"gateway_order_id"`
	UserID           string      `json:"user_id"`
	EventID          string      `json:"event_id"`
	AmountMinorUnits int64       `json:"amount_minor_units"`
	Currency         string      `json:"currency"`
	Status           OrderStatus `json:"status"`
	Receipt          string      `json:"receipt"`
	ExpiresAt        time.Time   `json:"expires_at"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Payment is one gateway payment attempt against a PaymentOrder. GatewayPaymentID
// is unique — it's the idempotency key that prevents double-issuing a ticket.
type Payment struct {
	ID               string    `json:"id"`
	OrderID          string    `json:"order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	GatewaySignature string    `json:"gateway_signature"`
	AmountPaid       int64     `json:"amount_paid"`
	Status           string    `json:"status"`
	Method           string    `json:"method,omitempty"`
	ErrorCode        string    `json:"error_code,omitempty"`
	ErrorDescription string    `json:"error_description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// PaymentAuditLog is an append-only trail of everything that happened to an
// order: created, gateway webhook received, verified, issued, failed.
type PaymentAuditLog struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id,omitempty"`
	Action    string    `json:"action"`
	OldStatus string    `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status,omitempty"`
	Details   string    `json:"details,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TransactionType marks a PointsTransaction as a credit or a debit.
type TransactionType string

const (
	TxEarned   TransactionType = "earned"
	TxDeducted TransactionType = "deducted"
)

// PointsTransaction is one entry of a UserPoints append-only ledger.
type PointsTransaction struct {
	ID     string          `json:"id"`
	UserID string          `json:"user_id,omitempty"`
	Type   TransactionType `json:"type"`
	Points int64           `json:"points"`
	Reason string          `json:"reason"`
	Actor  string          `json:"actor,omitempty"`
	Ts     time.Time       `json:"ts"`
}

// UserPoints is a user's running loyalty balance plus its transaction log.
type UserPoints struct {
	UserID       string              `json:"user_id"`
	TotalPoints  int64               `json:"total_points"`
	Transactions []PointsTransaction `json:"transactions"`
}

// ConnectionStatus tracks a directed follow/connect request.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionBlocked  ConnectionStatus = "blocked"
)

// Connection is a directed edge between two users. Two users are
// "connected" when an accepted edge exists in either direction.
type Connection struct {
	ID          string           `json:"id"`
	RequesterID string           `json:"requester_id"`
	TargetID    string           `json:"target_id"`
	Status      ConnectionStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// JoinRequestStatus tracks an approval-required event join request.
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestAccepted JoinRequestStatus = "accepted"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

// EventJoinRequest is created instead of a Ticket when an event requires
// organizer approval before a registration is confirmed.
type EventJoinRequest struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	EventID     string            `json:"event_id"`
	Status      JoinRequestStatus `json:"status"`
	RequestedAt time.Time         `json:"requested_at"`
	ReviewedAt  *time.Time        `json:"reviewed_at,omitempty"`
	ReviewedBy  string            `json:"reviewed_by,omitempty"`
}

// ReceivedQrToken is the row shape of the received_qr_tokens audit table
// (a raw QR payload a scanning client forwarded). No code path in this
// repository writes these rows.
type ReceivedQrToken struct {
	ID         string    `json:"id"`
	Token      string    `json:"token"`
	EventID    string    `json:"event_id"`
	ReceivedAt time.Time `json:"received_at"`
	Source     string    `json:"source,omitempty"`
}

// ProfileView is the privacy-projected profile returned to a viewer: full
// fields for public profiles or connected viewers, a minimal subset
// otherwise. Phone and email are never included regardless of privacy.
type ProfileView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	PictureURL       string   `json:"picture_url,omitempty"`
	IsPrivate        bool     `json:"is_private"`
	ConnectionsCount int      `json:"connections_count"`
	Bio              string   `json:"bio,omitempty"`
	StravaLink       string   `json:"strava_link,omitempty"`
	InstagramID      string   `json:"instagram_id,omitempty"`
	SubscribedEvents []string `json:"subscribed_events,omitempty"`
}

// ---- Request / Response DTOs ----

type RegisterRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type CreateEventRequest struct {
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	City             string    `json:"city"`
	Venue            string    `json:"venue"`
	StartAt          time.Time `json:"start_at"`
	EndAt            time.Time `json:"end_at"`
	PriceMinorUnits  int64     `json:"price_minor_units"`
	RequiresApproval bool      `json:"requires_approval"`
	BannerURL        string    `json:"banner_url,omitempty"`
}

type UpdateEventRequest struct {
	Title            *string    `json:"title,omitempty"`
	Description      *string    `json:"description,omitempty"`
	IsActive         *bool      `json:"is_active,omitempty"`
	RegistrationOpen *bool      `json:"registration_open,omitempty"`
	StartAt          *time.Time `json:"start_at,omitempty"`
	EndAt            *time.Time `json:"end_at,omitempty"`
}

type RegisterFreeRequest struct {
	EventID string `json:"event_id"`
}

type CreateOrderRequest struct {
	EventID string `json:"event_id"`
}

type CreateOrderResponse struct {
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id"`
}

type VerifyPaymentRequest struct {
	OrderID           string `json:"order_id"`
	GatewayOrderID    string `json:"gateway_order_id"`
	GatewayPaymentID  string `json:"gateway_payment_id"`
	GatewaySignature  string `json:"gateway_signature"`
}

type ValidateTicketRequest struct {
	QRToken  string `json:"qr_token"`
	EventID  string `json:"event_id"`
	Device   string `json:"device,omitempty"`
	Operator string `json:"operator,omitempty"`
}

type ValidateTicketResponse struct {
	TicketID      string `json:"ticket_id"`
	AlreadyScanned bool  `json:"already_scanned"`
	PointsAwarded bool   `json:"points_awarded,omitempty"`
}

type ConnectionRequestInput struct {
	TargetID string `json:"target_id"`
}

type ReviewJoinRequestInput struct {
	Action string `json:"action"` // "accept" | "reject"
}
