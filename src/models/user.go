package models

import "ccr/src/types"

// User is the minimal identity reference the engine needs. Authentication
// lives in the identity subsystem; the middleware only resolves the row.
type User struct {
	ID    uint   `gorm:"primarykey" json:"id"`
	Email string `gorm:"uniqueIndex" json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `gorm:"default:'customer'" json:"role,omitempty"`

	StripeCustomerId *string `json:"-"`

	types.Timestamps
}
