package rentals

import (
	"ccr/src/config"
	"ccr/src/db"
	"ccr/src/inventory"
	"ccr/src/models"
	"ccr/src/pricing"
	"ccr/src/types"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newRentalNumber() string {
	id := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("CC-%s", strings.ToUpper(id))
}

// ParseDate parses a yyyy-mm-dd request date in UTC.
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(config.DATE_PARSE_FORMAT, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", types.ErrInvalidDateRange, value)
	}
	return t, nil
}

// CreateRental prices the cart, claims a reservation window for every line
// and persists the rental, all or nothing. The price snapshot is taken here
// and never recomputed from the catalog again.
func CreateRental(userID uint, body *types.CreateRentalRequestBody, now time.Time) (*models.Rental, error) {
	start, err := ParseDate(body.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(body.EndDate)
	if err != nil {
		return nil, err
	}
	if err := pricing.ValidateRange(start, end, now); err != nil {
		return nil, err
	}
	if body.DeliveryOption == types.DELIVERY_HOME && body.DeliveryAddress == "" {
		return nil, fmt.Errorf("%w: home delivery requires an address", types.ErrInvalidRequest)
	}

	ids := make([]uint, 0, len(body.Items))
	qtyByItem := map[uint]uint{}
	for _, line := range body.Items {
		if _, dup := qtyByItem[line.ItemID]; dup {
			return nil, fmt.Errorf("%w: duplicate line for item %d", types.ErrInvalidRequest, line.ItemID)
		}
		ids = append(ids, line.ItemID)
		qtyByItem[line.ItemID] = line.Qty
	}

	conn := db.GetDb()
	var items []models.Item
	if err := conn.Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	if len(items) != len(ids) {
		return nil, fmt.Errorf("%w: one or more items do not exist", types.ErrNotFound)
	}
	quantities := make([]uint, len(items))
	for i, item := range items {
		quantities[i] = qtyByItem[item.ID]
	}

	quote, err := pricing.NewQuote(items, quantities, body.RentalType, start, end, now)
	if err != nil {
		return nil, err
	}

	rental := models.Rental{
		RentalNumber:    newRentalNumber(),
		UserID:          userID,
		RentalType:      body.RentalType,
		Status:          types.RENTAL_PENDING,
		PaymentStatus:   types.PAYMENT_UNPAID,
		StartDate:       start,
		EndDate:         end,
		DailyRate:       quote.DailyRate,
		TotalPrice:      quote.TotalPrice,
		SecurityDeposit: quote.Deposit,
		DeliveryOption:  body.DeliveryOption,
		DeliveryAddress: body.DeliveryAddress,
		DeliveryNotes:   body.DeliveryNotes,
	}
	for i, item := range items {
		rental.Items = append(rental.Items, models.RentalItem{
			ItemID:    item.ID,
			Quantity:  quantities[i],
			UnitPrice: quote.Lines[i].UnitPrice,
		})
	}

	// The item locks serialize check-and-claim per item; the transaction
	// keeps the rental and its windows consistent if any claim fails.
	unlock := inventory.Lock(ids...)
	defer unlock()
	err = conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rental).Error; err != nil {
			return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
		}
		for i, item := range items {
			if _, err := inventory.ClaimWindow(tx, rental.ID, item.ID, start, end, quantities[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[rentals] created %s for user %d: %d line(s), total %.2f\n", rental.RentalNumber, userID, len(rental.Items), rental.TotalPrice)
	return &rental, nil
}

// transition performs a guarded status flip. The previous status sits in
// the WHERE clause, so a concurrent writer that got there first leaves
// zero rows affected and the loser gets ErrInvalidTransition.
func transition(tx *gorm.DB, rentalID uint, from, to types.RentalStatus, updates map[string]any) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", types.ErrInvalidTransition, from, to)
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	res := tx.
		Model(&models.Rental{}).
		Where("id = ? AND status = ?", rentalID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: rental %d is no longer %s", types.ErrInvalidTransition, rentalID, from)
	}
	return nil
}

func getRental(tx *gorm.DB, rentalID uint) (*models.Rental, error) {
	var rental models.Rental
	if err := tx.Preload("Items").First(&rental, rentalID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: rental %d", types.ErrNotFound, rentalID)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return &rental, nil
}

// GetRental loads a rental with its lines.
func GetRental(rentalID uint) (*models.Rental, error) {
	return getRental(db.GetDb(), rentalID)
}

// ListRentals returns a user's rentals, newest first.
func ListRentals(userID uint) ([]models.Rental, error) {
	var list []models.Rental
	err := db.GetDb().
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).
		Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return list, nil
}

// ConfirmTx moves a paid rental from pending to confirmed. The payment
// check rides in the WHERE clause so confirmation can never outrun the
// payment status written in the same transaction.
func ConfirmTx(tx *gorm.DB, rentalID uint, now time.Time) error {
	res := tx.
		Model(&models.Rental{}).
		Where("id = ? AND status = ? AND payment_status = ?", rentalID, types.RENTAL_PENDING, types.PAYMENT_PAID).
		Updates(map[string]any{"status": types.RENTAL_CONFIRMED, "confirmed_at": now})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: rental %d is not a paid pending rental", types.ErrInvalidTransition, rentalID)
	}
	return nil
}

// Activate hands the items over to the customer. Only confirmed rentals
// whose start date has arrived can go active.
func Activate(rentalID uint, now time.Time) (*models.Rental, error) {
	conn := db.GetDb()
	rental, err := getRental(conn, rentalID)
	if err != nil {
		return nil, err
	}
	if now.Before(rental.StartDate) {
		return nil, fmt.Errorf("%w: rental %d starts on %s", types.ErrInvalidTransition, rentalID, rental.StartDate.Format(config.DATE_PARSE_FORMAT))
	}
	err = transition(conn, rentalID, types.RENTAL_CONFIRMED, types.RENTAL_ACTIVE, map[string]any{"activated_at": now})
	if err != nil {
		return nil, err
	}
	log.Printf("[rentals] %s activated\n", rental.RentalNumber)
	return getRental(conn, rentalID)
}

// MarkLate flags an active rental whose end date has passed. A rental that
// is already late stays late, so the sweep can re-run freely.
func MarkLate(rentalID uint, now time.Time) error {
	conn := db.GetDb()
	rental, err := getRental(conn, rentalID)
	if err != nil {
		return err
	}
	if rental.Status == types.RENTAL_LATE {
		return nil
	}
	if !now.After(rental.EndDate) {
		return fmt.Errorf("%w: rental %d is not overdue", types.ErrInvalidTransition, rentalID)
	}
	err = transition(conn, rentalID, types.RENTAL_ACTIVE, types.RENTAL_LATE, map[string]any{"late_marked_at": now})
	if err != nil {
		return err
	}
	log.Printf("[rentals] %s marked late, due %s\n", rental.RentalNumber, rental.EndDate.Format(config.DATE_PARSE_FORMAT))
	return nil
}

// Return closes out an active or late rental. The late fee is settled here
// from the actual return date, and early returns free the unused tail of
// the reservation when the release policy allows it.
func Return(rentalID uint, returnDate time.Time) (*models.Rental, error) {
	conn := db.GetDb()
	rental, err := getRental(conn, rentalID)
	if err != nil {
		return nil, err
	}
	if rental.Status != types.RENTAL_ACTIVE && rental.Status != types.RENTAL_LATE {
		return nil, fmt.Errorf("%w: rental %d is %s", types.ErrInvalidTransition, rentalID, rental.Status)
	}

	lateFee := pricing.LateFee(rental.DailyRate, rental.EndDate, returnDate, config.LateFeeMultiplier)
	err = conn.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"actual_return_date": returnDate,
			"returned_at":        returnDate,
			"late_fee":           lateFee,
		}
		if err := transition(tx, rentalID, rental.Status, types.RENTAL_RETURNED, updates); err != nil {
			return err
		}
		if returnDate.Before(rental.EndDate) && config.EarlyReleasePolicy == config.EARLY_RELEASE_IMMEDIATE {
			return inventory.ShortenWindowsForRental(tx, rentalID, returnDate)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if lateFee > 0 {
		log.Printf("[rentals] %s returned %d day(s) late, fee %.2f\n", rental.RentalNumber, pricing.OverdueDays(rental.EndDate, returnDate), lateFee)
	} else {
		log.Printf("[rentals] %s returned\n", rental.RentalNumber)
	}
	return getRental(conn, rentalID)
}

// Cancel voids a rental that has not started yet and releases its claim on
// inventory in the same transaction.
func Cancel(rentalID uint) (*models.Rental, error) {
	conn := db.GetDb()
	rental, err := getRental(conn, rentalID)
	if err != nil {
		return nil, err
	}
	if rental.Status != types.RENTAL_PENDING && rental.Status != types.RENTAL_CONFIRMED {
		return nil, fmt.Errorf("%w: rental %d is %s", types.ErrInvalidTransition, rentalID, rental.Status)
	}
	err = conn.Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, rentalID, rental.Status, types.RENTAL_CANCELED, nil); err != nil {
			return err
		}
		return inventory.ReleaseWindowsForRental(tx, rentalID)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[rentals] %s cancelled\n", rental.RentalNumber)
	return getRental(conn, rentalID)
}
