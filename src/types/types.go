package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return errors.New("type assertion to []byte failed")
	}
}

type ItemKind string

const (
	ITEM_CONSOLE   ItemKind = "console"
	ITEM_GAME      ItemKind = "game"
	ITEM_ACCESSORY ItemKind = "accessory"
)

type RentalStatus string

const (
	RENTAL_PENDING   RentalStatus = "pending"
	RENTAL_CONFIRMED RentalStatus = "confirmed"
	RENTAL_ACTIVE    RentalStatus = "active"
	RENTAL_LATE      RentalStatus = "late"
	RENTAL_RETURNED  RentalStatus = "returned"
	RENTAL_CANCELED  RentalStatus = "cancelled"
)

type RentalType string

const (
	RENTAL_TYPE_DAILY   RentalType = "daily"
	RENTAL_TYPE_WEEKLY  RentalType = "weekly"
	RENTAL_TYPE_MONTHLY RentalType = "monthly"
)

type PaymentStatus string

const (
	PAYMENT_UNPAID         PaymentStatus = "unpaid"
	PAYMENT_PARTIALLY_PAID PaymentStatus = "partially_paid"
	PAYMENT_PAID           PaymentStatus = "paid"
	PAYMENT_REFUNDED       PaymentStatus = "refunded"
)

type DeliveryOption string

const (
	DELIVERY_PICKUP DeliveryOption = "pickup"
	DELIVERY_HOME   DeliveryOption = "home_delivery"
)

type WindowStatus string

const (
	WINDOW_HELD     WindowStatus = "held"
	WINDOW_RELEASED WindowStatus = "released"
)

type SessionStatus string

const (
	SESSION_OPEN      SessionStatus = "open"
	SESSION_COMPLETED SessionStatus = "completed"
	SESSION_EXPIRED   SessionStatus = "expired"
	SESSION_CANCELED  SessionStatus = "cancelled"
)

type PaymentType string

const (
	PAYMENT_TYPE_RENTAL   PaymentType = "rental"
	PAYMENT_TYPE_DEPOSIT  PaymentType = "deposit"
	PAYMENT_TYPE_LATE_FEE PaymentType = "late_fee"
)

// PaymentEventKind is the closed set of provider notifications the
// reconciler knows how to apply. Anything else is logged and dropped.
type PaymentEventKind string

const (
	EVENT_CHECKOUT_COMPLETED PaymentEventKind = "checkout.completed"
	EVENT_CHECKOUT_EXPIRED   PaymentEventKind = "checkout.expired"
	EVENT_REFUND_COMPLETED   PaymentEventKind = "refund.completed"
)

// PaymentEvent is an inbound payment-provider notification. EventID is the
// provider-assigned id and doubles as the dedup key.
type PaymentEvent struct {
	EventID         string           `json:"event_id"`
	Type            PaymentEventKind `json:"type"`
	SessionID       string           `json:"session_id,omitempty"`
	PaymentIntentID string           `json:"payment_intent_id,omitempty"`
	Payload         JSONB            `json:"payload,omitempty"`
}

type NotificationKind string

const (
	NOTIFY_RETURN_REMINDER      NotificationKind = "return_reminder"
	NOTIFY_PAYMENT_CONFIRMATION NotificationKind = "payment_confirmation"
	NOTIFY_DEPOSIT_REFUNDED     NotificationKind = "deposit_refunded"
)

type RentalLineItem struct {
	ItemID uint `json:"item" binding:"required"`
	Qty    uint `json:"qty" binding:"required,min=1"`
}

type CreateRentalRequestBody struct {
	Items           []RentalLineItem `json:"items" binding:"required,min=1"`
	RentalType      RentalType       `json:"rental_type" binding:"required,oneof=daily weekly monthly"`
	StartDate       string           `json:"start_date" binding:"required,rentaldate"`
	EndDate         string           `json:"end_date" binding:"required,rentaldate"`
	DeliveryOption  DeliveryOption   `json:"delivery_option,omitempty" binding:"omitempty,oneof=pickup home_delivery"`
	DeliveryAddress string           `json:"delivery_address,omitempty"`
	DeliveryNotes   string           `json:"delivery_notes,omitempty"`
}

type ReturnRentalRequestBody struct {
	ReturnDate string `json:"return_date,omitempty" binding:"omitempty,rentaldate"`
}

type CheckoutRequestBody struct {
	PaymentType PaymentType `json:"payment_type,omitempty" binding:"omitempty,oneof=rental deposit late_fee"`
}

type CreateReviewRequestBody struct {
	RentalID uint   `json:"rental_id" binding:"required"`
	Rating   int    `json:"rating" binding:"required,min=1,max=5"`
	Comment  string `json:"comment,omitempty"`
}

type AvailabilityQueryParams struct {
	ItemID uint   `form:"item" binding:"required"`
	Start  string `form:"start" binding:"required,rentaldate"`
	End    string `form:"end" binding:"required,rentaldate"`
	Qty    uint   `form:"qty,default=1"`
}

type QuoteQueryParams struct {
	ItemID     uint       `form:"item" binding:"required"`
	RentalType RentalType `form:"type" binding:"required,oneof=daily weekly monthly"`
	Start      string     `form:"start" binding:"required,rentaldate"`
	End        string     `form:"end" binding:"required,rentaldate"`
	Qty        uint       `form:"qty,default=1"`
}

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}
