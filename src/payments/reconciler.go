package payments

import (
	"ccr/src/db"
	"ccr/src/lib"
	"ccr/src/models"
	"ccr/src/rentals"
	"ccr/src/types"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Apply reconciles one provider event against local state. Every event is
// journaled by its provider id with an insert-if-absent, so a redelivered
// event is detected and dropped before any state changes. The journal row
// and the state changes commit in one transaction: either the event is
// fully applied and recorded, or neither.
func Apply(event *types.PaymentEvent, now time.Time) error {
	conn := db.GetDb()
	var confirm *models.Rental
	var confirmAmount float64
	err := conn.Transaction(func(tx *gorm.DB) error {
		row := models.WebhookEvent{
			EventID:   event.EventID,
			Type:      string(event.Type),
			SessionID: event.SessionID,
			Payload:   event.Payload,
		}
		res := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}},
				DoNothing: true,
			}).
			Create(&row)
		if res.Error != nil {
			return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, res.Error)
		}
		if res.RowsAffected == 0 {
			log.Printf("[reconciler] duplicate event %s, skipping\n", event.EventID)
			return nil
		}

		var applyErr error
		switch event.Type {
		case types.EVENT_CHECKOUT_COMPLETED:
			confirm, confirmAmount, applyErr = applyCheckoutCompleted(tx, event, now)
		case types.EVENT_CHECKOUT_EXPIRED:
			applyErr = applyCheckoutExpired(tx, event)
		case types.EVENT_REFUND_COMPLETED:
			applyErr = applyRefundCompleted(tx, event)
		default:
			// Outside the closed set. Journaled, acknowledged, ignored.
			log.Printf("[reconciler] ignoring unhandled event type %s (%s)\n", event.Type, event.EventID)
		}
		if applyErr != nil {
			return applyErr
		}
		err := tx.
			Model(&models.WebhookEvent{}).
			Where("id = ?", row.ID).
			Update("processed", true).
			Error
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Mail only once the journal row and state changes are committed.
	if confirm != nil {
		go sendPaymentConfirmation(confirm, confirmAmount)
	}
	return nil
}

// Fire and forget; a lost mail never blocks or rolls back reconciliation.
func sendPaymentConfirmation(rental *models.Rental, amount float64) {
	var user models.User
	if err := db.GetDb().First(&user, rental.UserID).Error; err != nil || user.Email == "" {
		return
	}
	subject := fmt.Sprintf("Payment received for rental %s", rental.RentalNumber)
	body := fmt.Sprintf("Hi %s,\n\nWe received your payment of %.2f for rental %s.\n", user.Name, amount, rental.RentalNumber)
	if err := lib.GetNotifier().Notify(types.NOTIFY_PAYMENT_CONFIRMATION, user.Email, subject, body); err != nil {
		log.Printf("[reconciler] confirmation mail failed for %s: %s\n", rental.RentalNumber, err.Error())
	}
}

func sessionByID(tx *gorm.DB, sessionID string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := tx.Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return &session, nil
}

// applyCheckoutCompleted settles the session and its rental. When a rental
// payment lands it also returns the rental so the caller can send the
// confirmation mail after the transaction commits.
func applyCheckoutCompleted(tx *gorm.DB, event *types.PaymentEvent, now time.Time) (*models.Rental, float64, error) {
	session, err := sessionByID(tx, event.SessionID)
	if err != nil {
		return nil, 0, err
	}
	if session == nil {
		log.Printf("[reconciler] completed event %s references unknown session %s\n", event.EventID, event.SessionID)
		return nil, 0, nil
	}
	res := tx.
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status IN ?", session.ID, []types.SessionStatus{types.SESSION_OPEN, types.SESSION_EXPIRED}).
		Updates(map[string]any{
			"status":            types.SESSION_COMPLETED,
			"payment_intent_id": event.PaymentIntentID,
		})
	if res.Error != nil {
		return nil, 0, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		log.Printf("[reconciler] session %s already settled, event %s is a no-op\n", session.SessionID, event.EventID)
		return nil, 0, nil
	}

	var rental models.Rental
	if err := tx.First(&rental, session.RentalID).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	if rental.Status == types.RENTAL_CANCELED {
		// Money arrived for a dead booking. Flag it for a manual refund
		// rather than resurrecting the rental.
		log.Printf("[reconciler] payment for cancelled rental %s (event %s), needs manual refund\n", rental.RentalNumber, event.EventID)
		return nil, 0, nil
	}

	switch session.PaymentType {
	case types.PAYMENT_TYPE_RENTAL:
		err := tx.
			Model(&models.Rental{}).
			Where("id = ?", rental.ID).
			Update("payment_status", types.PAYMENT_PAID).
			Error
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
		}
		if rental.Status == types.RENTAL_PENDING {
			if err := rentals.ConfirmTx(tx, rental.ID, now); err != nil {
				return nil, 0, err
			}
			log.Printf("[reconciler] rental %s paid and confirmed\n", rental.RentalNumber)
		}
		return &rental, session.Amount, nil
	case types.PAYMENT_TYPE_DEPOSIT:
		log.Printf("[reconciler] deposit collected for rental %s\n", rental.RentalNumber)
	case types.PAYMENT_TYPE_LATE_FEE:
		log.Printf("[reconciler] late fee collected for rental %s\n", rental.RentalNumber)
	}
	return nil, 0, nil
}

func applyCheckoutExpired(tx *gorm.DB, event *types.PaymentEvent) error {
	session, err := sessionByID(tx, event.SessionID)
	if err != nil {
		return err
	}
	if session == nil {
		log.Printf("[reconciler] expired event %s references unknown session %s\n", event.EventID, event.SessionID)
		return nil
	}
	// Only the session dies. The rental stays pending so the customer can
	// open a fresh checkout.
	res := tx.
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", session.ID, types.SESSION_OPEN).
		Update("status", types.SESSION_EXPIRED)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		log.Printf("[reconciler] session %s already settled, event %s is a no-op\n", session.SessionID, event.EventID)
	}
	return nil
}

func applyRefundCompleted(tx *gorm.DB, event *types.PaymentEvent) error {
	var session models.CheckoutSession
	err := tx.Where("payment_intent_id = ?", event.PaymentIntentID).First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			log.Printf("[reconciler] refund event %s references unknown payment intent %s\n", event.EventID, event.PaymentIntentID)
			return nil
		}
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	updates := map[string]any{}
	switch session.PaymentType {
	case types.PAYMENT_TYPE_DEPOSIT:
		updates["deposit_refunded"] = true
	case types.PAYMENT_TYPE_RENTAL:
		updates["payment_status"] = types.PAYMENT_REFUNDED
	default:
		log.Printf("[reconciler] refund for %s session %s, nothing to record\n", session.PaymentType, session.SessionID)
		return nil
	}
	err = tx.
		Model(&models.Rental{}).
		Where("id = ?", session.RentalID).
		Updates(updates).
		Error
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	log.Printf("[reconciler] refund recorded for rental %d (%s)\n", session.RentalID, session.PaymentType)
	return nil
}
