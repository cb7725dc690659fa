package models

import (
	"ccr/src/types"
	"time"
)

// Rental is the central booking entity. It is never deleted; terminal
// states are kept for audit and review eligibility.
type Rental struct {
	ID           uint   `gorm:"primarykey" json:"id"`
	RentalNumber string `gorm:"uniqueIndex" json:"rental_number,omitempty"`
	UserID       uint   `json:"user_id,omitempty"`

	RentalType    types.RentalType    `gorm:"default:'daily'" json:"rental_type,omitempty"`
	Status        types.RentalStatus  `gorm:"default:'pending';index" json:"status,omitempty"`
	PaymentStatus types.PaymentStatus `gorm:"default:'unpaid';index" json:"payment_status,omitempty"`

	StartDate        time.Time  `gorm:"index" json:"start_date"`
	EndDate          time.Time  `gorm:"index" json:"end_date"`
	ActualReturnDate *time.Time `json:"actual_return_date,omitempty"`

	// Pricing snapshot taken at booking time.
	DailyRate       float64 `json:"daily_rate,omitempty"`
	TotalPrice      float64 `json:"total_price"`
	SecurityDeposit float64 `json:"security_deposit,omitempty"`
	LateFee         float64 `json:"late_fee,omitempty"`
	DepositRefunded bool    `json:"deposit_refunded,omitempty"`

	DeliveryOption  types.DeliveryOption `gorm:"default:'pickup'" json:"delivery_option,omitempty"`
	DeliveryAddress string               `json:"delivery_address,omitempty"`
	DeliveryNotes   string               `json:"delivery_notes,omitempty"`

	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
	ReturnedAt   *time.Time `json:"returned_at,omitempty"`
	LateMarkedAt *time.Time `json:"late_marked_at,omitempty"`

	User    *User               `gorm:"foreignKey:user_id" json:"user,omitempty"`
	Items   []RentalItem        `json:"items,omitempty"`
	Windows []ReservationWindow `json:"-"`

	types.Timestamps
}

// RentalItem is one line of a rental cart.
type RentalItem struct {
	ID        uint    `gorm:"primarykey" json:"id"`
	RentalID  uint    `gorm:"index" json:"rental_id,omitempty"`
	ItemID    uint    `json:"item_id,omitempty"`
	Quantity  uint    `json:"quantity,omitempty"`
	UnitPrice float64 `json:"unit_price,omitempty"`

	Item *Item `gorm:"foreignKey:item_id" json:"item,omitempty"`

	types.Timestamps
}
