package models

import "ccr/src/types"

// Review is a verified review for a returned rental. One per rental.
type Review struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	RentalID uint   `gorm:"uniqueIndex" json:"rental_id,omitempty"`
	UserID   uint   `gorm:"index" json:"user_id,omitempty"`
	ItemID   uint   `gorm:"index" json:"item_id,omitempty"`
	Rating   int    `json:"rating,omitempty"`
	Comment  string `json:"comment,omitempty"`

	Rental *Rental `gorm:"foreignKey:rental_id" json:"-"`
	User   *User   `gorm:"foreignKey:user_id" json:"-"`

	types.Timestamps
}
