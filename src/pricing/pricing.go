package pricing

import (
	"ccr/src/models"
	"ccr/src/types"
	"fmt"
	"time"
)

// Unit sizes in days per rental type. Monthly is a fixed 30-day bucket used
// for rate selection only; the reservation itself still consumes exact
// calendar days of inventory.
const (
	DAILY_UNIT_DAYS   = 1
	WEEKLY_UNIT_DAYS  = 7
	MONTHLY_UNIT_DAYS = 30
)

// Line is the priced breakdown for one cart line.
type Line struct {
	ItemID    uint    `json:"item_id"`
	Quantity  uint    `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

// Quote is a full price breakdown for a requested rental.
type Quote struct {
	RentalType    types.RentalType `json:"rental_type"`
	DurationDays  int              `json:"duration_days"`
	DurationUnits int              `json:"duration_units"`
	Lines         []Line           `json:"lines,omitempty"`
	DailyRate     float64          `json:"daily_rate"`
	TotalPrice    float64          `json:"total_price"`
	Deposit       float64          `json:"security_deposit"`
}

func unitSize(rentalType types.RentalType) int {
	switch rentalType {
	case types.RENTAL_TYPE_WEEKLY:
		return WEEKLY_UNIT_DAYS
	case types.RENTAL_TYPE_MONTHLY:
		return MONTHLY_UNIT_DAYS
	}
	return DAILY_UNIT_DAYS
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DurationDays counts the calendar days a rental occupies. The range is
// inclusive on both ends, so a same-day rental is one day.
func DurationDays(start, end time.Time) int {
	return int(dateOnly(end).Sub(dateOnly(start)).Hours()/24) + 1
}

// DurationUnits converts calendar days into billable units for the rental
// type. Fractional units always round up: a partial week bills a full week.
func DurationUnits(days int, rentalType types.RentalType) int {
	size := unitSize(rentalType)
	return (days + size - 1) / size
}

// ValidateRange rejects inverted ranges and start dates in the past,
// relative to the supplied clock.
func ValidateRange(start, end, now time.Time) error {
	if dateOnly(end).Before(dateOnly(start)) {
		return fmt.Errorf("%w: end date %s is before start date %s",
			types.ErrInvalidDateRange, end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	if dateOnly(start).Before(dateOnly(now)) {
		return fmt.Errorf("%w: start date %s is in the past",
			types.ErrInvalidDateRange, start.Format("2006-01-02"))
	}
	return nil
}

// NewQuote prices a cart of items for the requested range. Pure and
// deterministic: the same inputs always yield the same quote, which keeps
// re-pricing during reconciliation retries idempotent.
func NewQuote(items []models.Item, quantities []uint, rentalType types.RentalType, start, end, now time.Time) (*Quote, error) {
	if err := ValidateRange(start, end, now); err != nil {
		return nil, err
	}
	days := DurationDays(start, end)
	units := DurationUnits(days, rentalType)

	q := Quote{
		RentalType:    rentalType,
		DurationDays:  days,
		DurationUnits: units,
	}
	for i, item := range items {
		qty := quantities[i]
		unitPrice := item.Rate(rentalType) * float64(units)
		q.Lines = append(q.Lines, Line{
			ItemID:    item.ID,
			Quantity:  qty,
			UnitPrice: unitPrice,
			Subtotal:  unitPrice * float64(qty),
		})
		q.TotalPrice += unitPrice * float64(qty)
		q.DailyRate += item.DailyPrice * float64(qty)
		q.Deposit += item.SecurityDeposit * float64(qty)
	}
	return &q, nil
}

// OverdueDays counts whole days past the agreed end date. Zero when the
// return is on time or early.
func OverdueDays(endDate, actualReturn time.Time) int {
	d := int(dateOnly(actualReturn).Sub(dateOnly(endDate)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// LateFee computes the penalty for an overdue return.
func LateFee(dailyRate float64, endDate, actualReturn time.Time, multiplier float64) float64 {
	overdue := OverdueDays(endDate, actualReturn)
	if overdue == 0 {
		return 0
	}
	return float64(overdue) * dailyRate * multiplier
}
