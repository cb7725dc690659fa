package payments

import (
	"ccr/src/config"
	"ccr/src/db"
	"ccr/src/lib"
	"ccr/src/models"
	"ccr/src/types"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"
)

var sessionLocks sync.Map

// lockRental serializes checkout-session writes for one rental, so two
// concurrent opens cannot both commit an open session.
func lockRental(rentalID uint) func() {
	v, _ := sessionLocks.LoadOrStore(rentalID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func amountFor(rental *models.Rental, paymentType types.PaymentType) (float64, error) {
	switch paymentType {
	case types.PAYMENT_TYPE_RENTAL:
		if rental.Status != types.RENTAL_PENDING {
			return 0, fmt.Errorf("%w: rental %d is %s, nothing to collect", types.ErrInvalidTransition, rental.ID, rental.Status)
		}
		return rental.TotalPrice, nil
	case types.PAYMENT_TYPE_DEPOSIT:
		return rental.SecurityDeposit, nil
	case types.PAYMENT_TYPE_LATE_FEE:
		return rental.LateFee, nil
	}
	return 0, fmt.Errorf("unknown payment type %s", paymentType)
}

// OpenCheckout opens a provider checkout session for one payment of a
// rental. Any session still open for the same rental and payment type is
// superseded first, so at most one collectable session exists at a time.
func OpenCheckout(rentalID uint, paymentType types.PaymentType, now time.Time) (*models.CheckoutSession, error) {
	conn := db.GetDb()
	var rental models.Rental
	if err := conn.First(&rental, rentalID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: rental %d", types.ErrNotFound, rentalID)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	amount, err := amountFor(&rental, paymentType)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: nothing to collect for %s on rental %s", types.ErrInvalidTransition, paymentType, rental.RentalNumber)
	}

	provider := lib.GetPaymentProvider()
	ctx := context.Background()

	unlock := lockRental(rental.ID)
	defer unlock()

	var superseded []models.CheckoutSession
	if err := conn.
		Where("rental_id = ? AND payment_type = ? AND status = ?", rentalID, paymentType, types.SESSION_OPEN).
		Find(&superseded).
		Error; err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}

	expiresAt := now.Add(config.CheckoutSessionTTL)
	result, err := provider.OpenCheckoutSession(ctx, &lib.CheckoutParams{
		RentalNumber: rental.RentalNumber,
		Description:  fmt.Sprintf("%s payment for rental %s", paymentType, rental.RentalNumber),
		Amount:       amount,
		Currency:     "inr",
		ExpiresAt:    expiresAt,
		Metadata: map[string]string{
			"rental_id":     fmt.Sprintf("%d", rental.ID),
			"rental_number": rental.RentalNumber,
			"payment_type":  string(paymentType),
		},
	})
	if err != nil {
		return nil, err
	}

	session := models.CheckoutSession{
		SessionID:   result.SessionID,
		RentalID:    rental.ID,
		PaymentType: paymentType,
		Amount:      amount,
		Currency:    "inr",
		Status:      types.SESSION_OPEN,
		ExpiresAt:   expiresAt,
		CheckoutURL: result.URL,
	}
	err = conn.Transaction(func(tx *gorm.DB) error {
		// Cancel by query, not by the ids read earlier, so any open row
		// this call did not see is still swept up before the insert.
		res := tx.
			Model(&models.CheckoutSession{}).
			Where("rental_id = ? AND payment_type = ? AND status = ?", rental.ID, paymentType, types.SESSION_OPEN).
			Update("status", types.SESSION_CANCELED)
		if res.Error != nil {
			return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, res.Error)
		}
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Best effort; the local row is already cancelled and the stale
	// session sweep catches anything the provider kept open.
	for _, old := range superseded {
		if err := provider.ExpireSession(ctx, old.SessionID); err != nil {
			log.Printf("[payments] Could not expire superseded session %s: %s\n", old.SessionID, err.Error())
		}
	}
	log.Printf("[payments] opened %s session %s for rental %s: %.2f\n", paymentType, session.SessionID, rental.RentalNumber, amount)
	return &session, nil
}

// RefundDeposit sends a rental's collected security deposit back through
// the provider. Eligible once the rental is returned with no outstanding
// late fee; deposit_refunded flips only when the provider's refund event
// lands, so a marker guards the call while that event is in flight.
func RefundDeposit(rentalID uint) (string, error) {
	conn := db.GetDb()
	var rental models.Rental
	if err := conn.First(&rental, rentalID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", fmt.Errorf("%w: rental %d", types.ErrNotFound, rentalID)
		}
		return "", fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	if rental.Status != types.RENTAL_RETURNED {
		return "", fmt.Errorf("%w: rental %s is %s, deposit stays held", types.ErrInvalidTransition, rental.RentalNumber, rental.Status)
	}
	if rental.LateFee > 0 {
		return "", fmt.Errorf("%w: rental %s has an unsettled late fee", types.ErrInvalidTransition, rental.RentalNumber)
	}
	if rental.DepositRefunded {
		return "", fmt.Errorf("%w: deposit for rental %s already refunded", types.ErrInvalidTransition, rental.RentalNumber)
	}
	var session models.CheckoutSession
	err := conn.
		Where("rental_id = ? AND payment_type = ? AND status = ? AND payment_intent_id <> ''",
			rental.ID, types.PAYMENT_TYPE_DEPOSIT, types.SESSION_COMPLETED).
		Order("created_at DESC").
		First(&session).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", fmt.Errorf("%w: no collected deposit on file for rental %s", types.ErrNotFound, rental.RentalNumber)
		}
		return "", fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	ctx := context.Background()
	key := fmt.Sprintf("deposit_refund:%d", rental.ID)
	if !lib.ClaimOnce(ctx, key, config.RefundClaimTTL) {
		return "", fmt.Errorf("%w: refund for rental %s is already in flight", types.ErrInvalidTransition, rental.RentalNumber)
	}
	refundID, err := lib.GetPaymentProvider().IssueRefund(ctx, session.PaymentIntentID, session.Amount)
	if err != nil {
		// Give the marker back so the next sweep can retry.
		lib.ReleaseClaim(ctx, key)
		return "", err
	}
	log.Printf("[payments] refund %s issued for rental %s deposit\n", refundID, rental.RentalNumber)
	return refundID, nil
}

// ListSessions returns a rental's checkout sessions, newest first.
func ListSessions(rentalID uint) ([]models.CheckoutSession, error) {
	var sessions []models.CheckoutSession
	err := db.GetDb().
		Where("rental_id = ?", rentalID).
		Order("created_at DESC").
		Find(&sessions).
		Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return sessions, nil
}
