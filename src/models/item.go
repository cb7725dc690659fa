package models

import (
	"ccr/src/types"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Item is a rentable catalog entry (console, game, or accessory). The
// engine only reads it; stock and pricing are managed by catalog tooling.
type Item struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	Name            string         `json:"name,omitempty"`
	Slug            string         `gorm:"uniqueIndex" json:"slug,omitempty"`
	Kind            types.ItemKind `json:"kind,omitempty"`
	Description     string         `json:"description,omitempty"`
	DailyPrice      float64        `json:"daily_price"`
	WeeklyPrice     float64        `json:"weekly_price,omitempty"`
	MonthlyPrice    float64        `json:"monthly_price,omitempty"`
	SecurityDeposit float64        `json:"security_deposit,omitempty"`
	StockQuantity   uint           `json:"stock_quantity"`
	Active          bool           `gorm:"default:true" json:"active"`

	types.Timestamps
}

func (i *Item) BeforeCreate(tx *gorm.DB) error {
	if i.Slug == "" {
		i.Slug = slug.Make(i.Name)
	}
	return nil
}

// Rate returns the price bucket for a rental type, falling back to the
// daily rate when no tenure-specific rate is set.
func (i *Item) Rate(rentalType types.RentalType) float64 {
	switch rentalType {
	case types.RENTAL_TYPE_WEEKLY:
		if i.WeeklyPrice > 0 {
			return i.WeeklyPrice
		}
	case types.RENTAL_TYPE_MONTHLY:
		if i.MonthlyPrice > 0 {
			return i.MonthlyPrice
		}
	}
	return i.DailyPrice
}
