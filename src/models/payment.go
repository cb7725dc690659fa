package models

import (
	"ccr/src/types"
	"time"
)

// CheckoutSession is one outstanding payment attempt for a rental. At most
// one open session exists per rental; opening a new one supersedes it.
// Deleting or expiring a session never touches the Rental.
type CheckoutSession struct {
	ID          uint                `gorm:"primarykey" json:"id"`
	SessionID   string              `gorm:"uniqueIndex" json:"session_id,omitempty"`
	RentalID    uint                `gorm:"index" json:"rental_id,omitempty"`
	PaymentType types.PaymentType   `gorm:"default:'rental'" json:"payment_type,omitempty"`
	Amount      float64             `json:"amount"`
	Currency    string              `gorm:"default:'inr'" json:"currency,omitempty"`
	Status      types.SessionStatus `gorm:"default:'open';index" json:"status,omitempty"`
	ExpiresAt   time.Time           `json:"expires_at"`
	CheckoutURL string              `json:"checkout_url,omitempty"`

	// Provider PaymentIntent reference, populated once checkout completes.
	// Authoritative handle for refunds.
	PaymentIntentID string `gorm:"index" json:"-"`

	Rental *Rental `gorm:"foreignKey:rental_id" json:"-"`

	types.Timestamps
}
