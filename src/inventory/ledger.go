package inventory

import (
	"ccr/src/models"
	"ccr/src/types"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Availability is the answer to "can I rent N of this item over this range".
// Free is computed against held reservation windows, never mutated stock.
type Availability struct {
	ItemID    uint   `json:"item_id"`
	Available bool   `json:"available"`
	Stock     uint   `json:"stock"`
	Reserved  uint   `json:"reserved"`
	Free      uint   `json:"free"`
	Reason    string `json:"reason,omitempty"`
}

// One mutex per item id. Every claim and release for an item funnels
// through its mutex, so check-then-claim is atomic per item without
// row-level locks.
var itemLocks sync.Map

func lockFor(itemID uint) *sync.Mutex {
	m, _ := itemLocks.LoadOrStore(itemID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Lock acquires the mutexes for every item in the cart and returns the
// matching unlock. Acquisition is in ascending id order so two carts that
// share items can never deadlock each other.
func Lock(itemIDs ...uint) func() {
	ids := append([]uint{}, itemIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	locked := make([]*sync.Mutex, 0, len(ids))
	var last uint
	for i, id := range ids {
		if i > 0 && id == last {
			continue
		}
		last = id
		mu := lockFor(id)
		mu.Lock()
		locked = append(locked, mu)
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}
}

// reservedQuantity sums the held window quantities for an item that overlap
// the inclusive range. Two ranges overlap when each starts on or before the
// other ends.
func reservedQuantity(tx *gorm.DB, itemID uint, start, end time.Time) (uint, error) {
	var reserved int64
	err := tx.
		Model(&models.ReservationWindow{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("item_id = ? AND status = ?", itemID, types.WINDOW_HELD).
		Where("start_date <= ? AND end_date >= ?", end, start).
		Scan(&reserved).
		Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return uint(reserved), nil
}

// CheckAvailability reports whether qty units of an item are free across
// the whole range. Advisory unless the caller holds the item lock.
func CheckAvailability(tx *gorm.DB, itemID uint, start, end time.Time, qty uint) (*Availability, error) {
	var item models.Item
	if err := tx.First(&item, itemID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: item %d", types.ErrNotFound, itemID)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	av := Availability{ItemID: itemID, Stock: item.StockQuantity}
	if !item.Active {
		av.Reason = "item is not rentable"
		return &av, nil
	}
	reserved, err := reservedQuantity(tx, itemID, start, end)
	if err != nil {
		return nil, err
	}
	av.Reserved = reserved
	if reserved < item.StockQuantity {
		av.Free = item.StockQuantity - reserved
	}
	if av.Free >= qty {
		av.Available = true
	} else {
		av.Reason = fmt.Sprintf("only %d of %d available", av.Free, qty)
	}
	return &av, nil
}

// ClaimWindow re-checks availability and inserts a held window in one step.
// The caller must hold the item lock and run inside a transaction; the
// check and the insert are only atomic under both.
func ClaimWindow(tx *gorm.DB, rentalID, itemID uint, start, end time.Time, qty uint) (*models.ReservationWindow, error) {
	av, err := CheckAvailability(tx, itemID, start, end, qty)
	if err != nil {
		return nil, err
	}
	if !av.Available {
		return nil, fmt.Errorf("%w: item %d: %s", types.ErrAvailabilityExceeded, itemID, av.Reason)
	}
	window := models.ReservationWindow{
		RentalID:  rentalID,
		ItemID:    itemID,
		Quantity:  qty,
		StartDate: start,
		EndDate:   end,
		Status:    types.WINDOW_HELD,
	}
	if err := tx.Create(&window).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return &window, nil
}

// ReleaseWindowsForRental flips every held window of a rental to released.
// Releasing an already-released window is a no-op, so retries are safe.
func ReleaseWindowsForRental(tx *gorm.DB, rentalID uint) error {
	err := tx.
		Model(&models.ReservationWindow{}).
		Where("rental_id = ? AND status = ?", rentalID, types.WINDOW_HELD).
		Update("status", types.WINDOW_RELEASED).
		Error
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return nil
}

// ShortenWindowsForRental pulls the end date of a rental's held windows
// back to newEnd, freeing the tail of the range for other bookings. Used
// on early returns under the immediate release policy.
func ShortenWindowsForRental(tx *gorm.DB, rentalID uint, newEnd time.Time) error {
	err := tx.
		Model(&models.ReservationWindow{}).
		Where("rental_id = ? AND status = ? AND end_date > ?", rentalID, types.WINDOW_HELD, newEnd).
		Update("end_date", newEnd).
		Error
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return nil
}
