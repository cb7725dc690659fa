package scheduler

import (
	"ccr/src/config"
	"ccr/src/db"
	"ccr/src/lib"
	"ccr/src/models"
	"ccr/src/payments"
	"ccr/src/rentals"
	"ccr/src/types"
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// SweepResult is the tally of one sweep run.
type SweepResult struct {
	Scanned int
	Applied int
	Errors  int
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RunReminderSweep mails every customer whose active rental is due back
// tomorrow. A per-rental per-date marker keeps the reminder at-most-once
// even when sweep runs overlap or the interval shrinks.
func RunReminderSweep(now time.Time) SweepResult {
	var result SweepResult
	conn := db.GetDb()
	tomorrow := dateOnly(now).AddDate(0, 0, 1)

	var due []models.Rental
	err := conn.
		Preload("User").
		Where("status = ?", types.RENTAL_ACTIVE).
		Where("end_date >= ? AND end_date < ?", tomorrow, tomorrow.AddDate(0, 0, 1)).
		Find(&due).
		Error
	if err != nil {
		log.Printf("[sweep:reminder] query failed: %s\n", err.Error())
		result.Errors++
		return result
	}
	result.Scanned = len(due)

	notify := lib.GetNotifier()
	ctx := context.Background()
	for _, rental := range due {
		if rental.User == nil || rental.User.Email == "" {
			continue
		}
		key := fmt.Sprintf("reminder:%d:%s", rental.ID, tomorrow.Format(config.DATE_PARSE_FORMAT))
		if !lib.ClaimOnce(ctx, key, 48*time.Hour) {
			continue
		}
		subject := fmt.Sprintf("Rental %s is due back tomorrow", rental.RentalNumber)
		body := fmt.Sprintf("Hi %s,\n\nYour rental %s is due back on %s. Late returns are charged %.1fx the daily rate per day.\n",
			rental.User.Name, rental.RentalNumber, rental.EndDate.Format(config.DATE_PARSE_FORMAT), config.LateFeeMultiplier)
		if err := notify.Notify(types.NOTIFY_RETURN_REMINDER, rental.User.Email, subject, body); err != nil {
			result.Errors++
			continue
		}
		result.Applied++
	}
	log.Printf("[sweep:reminder] scanned=%d reminded=%d errors=%d\n", result.Scanned, result.Applied, result.Errors)
	return result
}

// RunLateSweep flips active rentals past their end date to late. MarkLate
// tolerates rentals that are already late, so re-runs are free.
func RunLateSweep(now time.Time) SweepResult {
	var result SweepResult
	conn := db.GetDb()
	today := dateOnly(now)

	var overdue []models.Rental
	err := conn.
		Where("status = ? AND end_date < ?", types.RENTAL_ACTIVE, today).
		Find(&overdue).
		Error
	if err != nil {
		log.Printf("[sweep:late] query failed: %s\n", err.Error())
		result.Errors++
		return result
	}
	result.Scanned = len(overdue)
	for _, rental := range overdue {
		if err := rentals.MarkLate(rental.ID, now); err != nil {
			log.Printf("[sweep:late] could not mark %s late: %s\n", rental.RentalNumber, err.Error())
			result.Errors++
			continue
		}
		result.Applied++
	}
	log.Printf("[sweep:late] scanned=%d marked=%d errors=%d\n", result.Scanned, result.Applied, result.Errors)
	return result
}

// RunRefundSweep returns deposits for cleanly closed rentals: returned, no
// late fee, deposit collected and not yet refunded. The refund itself is
// asynchronous; deposit_refunded flips when the provider's refund event
// comes back through the reconciler. A marker guards the provider call so
// overlapping runs cannot double-refund while that event is in flight.
func RunRefundSweep(now time.Time) SweepResult {
	var result SweepResult
	conn := db.GetDb()

	var eligible []models.Rental
	err := conn.
		Where("status = ? AND late_fee = 0 AND deposit_refunded = ? AND security_deposit > 0",
			types.RENTAL_RETURNED, false).
		Find(&eligible).
		Error
	if err != nil {
		log.Printf("[sweep:refund] query failed: %s\n", err.Error())
		result.Errors++
		return result
	}
	result.Scanned = len(eligible)

	for _, rental := range eligible {
		_, err := payments.RefundDeposit(rental.ID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrInvalidTransition) {
				// No collected deposit on file, or a refund already in
				// flight; nothing for this pass to do.
				continue
			}
			log.Printf("[sweep:refund] refund failed for %s: %s\n", rental.RentalNumber, err.Error())
			result.Errors++
			continue
		}
		result.Applied++
	}
	log.Printf("[sweep:refund] scanned=%d refunded=%d errors=%d\n", result.Scanned, result.Applied, result.Errors)
	return result
}

// RunStaleSessionSweep expires open checkout sessions whose deadline has
// passed. Only the session changes; the rental keeps waiting for a fresh
// checkout.
func RunStaleSessionSweep(now time.Time) SweepResult {
	var result SweepResult
	conn := db.GetDb()

	var stale []models.CheckoutSession
	err := conn.
		Where("status = ? AND expires_at < ?", types.SESSION_OPEN, now).
		Find(&stale).
		Error
	if err != nil {
		log.Printf("[sweep:sessions] query failed: %s\n", err.Error())
		result.Errors++
		return result
	}
	result.Scanned = len(stale)

	provider := lib.GetPaymentProvider()
	ctx := context.Background()
	for _, session := range stale {
		res := conn.
			Model(&models.CheckoutSession{}).
			Where("id = ? AND status = ?", session.ID, types.SESSION_OPEN).
			Update("status", types.SESSION_EXPIRED)
		if res.Error != nil {
			log.Printf("[sweep:sessions] could not expire %s: %s\n", session.SessionID, res.Error.Error())
			result.Errors++
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		// Best effort on the provider side; a completed event arriving
		// later still wins through the reconciler.
		if err := provider.ExpireSession(ctx, session.SessionID); err != nil {
			log.Printf("[sweep:sessions] provider expire failed for %s: %s\n", session.SessionID, err.Error())
		}
		result.Applied++
	}
	log.Printf("[sweep:sessions] scanned=%d expired=%d errors=%d\n", result.Scanned, result.Applied, result.Errors)
	return result
}

// RegisterSweeps puts all four sweeps on the shared scheduler at the
// configured interval.
func RegisterSweeps() error {
	interval := config.SweepInterval
	jobs := map[string]func(time.Time) SweepResult{
		"reminder-sweep":      RunReminderSweep,
		"late-sweep":          RunLateSweep,
		"refund-sweep":        RunRefundSweep,
		"stale-session-sweep": RunStaleSessionSweep,
	}
	for name, sweep := range jobs {
		run := sweep
		if _, err := lib.CreateCronJob(name, func() { run(time.Now().UTC()) }, interval); err != nil {
			return err
		}
	}
	return nil
}
