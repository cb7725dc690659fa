package models

import (
	"ccr/src/types"
	"time"
)

// ReservationWindow is a committed claim of N units of one item for an
// inclusive date range. While held and overlapping a queried range it
// counts against available stock.
type ReservationWindow struct {
	ID        uint               `gorm:"primarykey" json:"id"`
	RentalID  uint               `gorm:"index" json:"rental_id,omitempty"`
	ItemID    uint               `gorm:"index" json:"item_id,omitempty"`
	Quantity  uint               `json:"quantity,omitempty"`
	StartDate time.Time          `json:"start_date"`
	EndDate   time.Time          `json:"end_date"`
	Status    types.WindowStatus `gorm:"default:'held';index" json:"status,omitempty"`

	types.Timestamps
}
