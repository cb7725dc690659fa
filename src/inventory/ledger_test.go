package inventory

import (
	"ccr/src/models"
	"ccr/src/types"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.Item{}, &models.Rental{}, &models.ReservationWindow{}))
	return conn
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedItem(t *testing.T, conn *gorm.DB, stock uint) models.Item {
	t.Helper()
	item := models.Item{Name: "PS5 Console", Kind: types.ITEM_CONSOLE, DailyPrice: 500, SecurityDeposit: 2000, StockQuantity: stock, Active: true}
	require.NoError(t, conn.Create(&item).Error)
	return item
}

func TestCheckAvailabilityEmptyLedger(t *testing.T) {
	conn := testDB(t)
	item := seedItem(t, conn, 3)

	av, err := CheckAvailability(conn, item.ID, day("2024-06-01"), day("2024-06-05"), 3)
	require.NoError(t, err)
	require.True(t, av.Available)
	require.Equal(t, uint(3), av.Free)
}

func TestClaimReducesAvailability(t *testing.T) {
	conn := testDB(t)
	item := seedItem(t, conn, 3)

	_, err := ClaimWindow(conn, 1, item.ID, day("2024-06-01"), day("2024-06-05"), 2)
	require.NoError(t, err)

	av, err := CheckAvailability(conn, item.ID, day("2024-06-03"), day("2024-06-08"), 2)
	require.NoError(t, err)
	require.False(t, av.Available)
	require.Equal(t, uint(1), av.Free)

	// A disjoint range is untouched by the claim.
	av, err = CheckAvailability(conn, item.ID, day("2024-06-06"), day("2024-06-10"), 3)
	require.NoError(t, err)
	require.True(t, av.Available)
}

func TestOverlapIsInclusive(t *testing.T) {
	conn := testDB(t)
	item := seedItem(t, conn, 1)

	_, err := ClaimWindow(conn, 1, item.ID, day("2024-06-01"), day("2024-06-05"), 1)
	require.NoError(t, err)

	// Sharing only the boundary day still collides.
	_, err = ClaimWindow(conn, 2, item.ID, day("2024-06-05"), day("2024-06-08"), 1)
	require.True(t, errors.Is(err, types.ErrAvailabilityExceeded))

	_, err = ClaimWindow(conn, 2, item.ID, day("2024-06-06"), day("2024-06-08"), 1)
	require.NoError(t, err)
}

func TestClaimRejectsOversell(t *testing.T) {
	conn := testDB(t)
	item := seedItem(t, conn, 2)

	_, err := ClaimWindow(conn, 1, item.ID, day("2024-06-01"), day("2024-06-05"), 2)
	require.NoError(t, err)
	_, err = ClaimWindow(conn, 2, item.ID, day("2024-06-02"), day("2024-06-04"), 1)
	require.True(t, errors.Is(err, types.ErrAvailabilityExceeded))
}

func TestInactiveItemNotRentable(t *testing.T) {
	conn := testDB(t)
	item := models.Item{Name: "Retired Console", DailyPrice: 100, StockQuantity: 5, Active: false}
	require.NoError(t, conn.Create(&item).Error)
	// AutoMigrate default would flip zero-value Active back to true on
	// create, so force it off.
	require.NoError(t, conn.Model(&models.Item{}).Where("id = ?", item.ID).Update("active", false).Error)

	av, err := CheckAvailability(conn, item.ID, day("2024-06-01"), day("2024-06-05"), 1)
	require.NoError(t, err)
	require.False(t, av.Available)
}

func TestReleaseRestoresAvailability(t *testing.T) {
	conn := testDB(t)
	item := seedItem(t, conn, 1)

	_, err := ClaimWindow(conn, 1, item.ID, day("2024-06-01"), day("2024-06-05"), 1)
	require.NoError(t, err)
	require.NoError(t, ReleaseWindowsForRental(conn, 1))

	av, err := CheckAvailability(conn, item.ID, day("2024-06-01"), day("2024-06-05"), 1)
	require.NoError(t, err)
	require.True(t, av.Available)

	// Releasing again changes nothing.
	require.NoError(t, ReleaseWindowsForRental(conn, 1))
}

func TestShortenFreesTail(t *testing.T) {
	conn := testDB(t)
	item := seedItem(t, conn, 1)

	_, err := ClaimWindow(conn, 1, item.ID, day("2024-06-01"), day("2024-06-10"), 1)
	require.NoError(t, err)
	require.NoError(t, ShortenWindowsForRental(conn, 1, day("2024-06-04")))

	av, err := CheckAvailability(conn, item.ID, day("2024-06-05"), day("2024-06-10"), 1)
	require.NoError(t, err)
	require.True(t, av.Available)

	av, err = CheckAvailability(conn, item.ID, day("2024-06-03"), day("2024-06-06"), 1)
	require.NoError(t, err)
	require.False(t, av.Available)
}

func TestConcurrentClaimsNeverOversell(t *testing.T) {
	conn := testDB(t)
	item := seedItem(t, conn, 1)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			unlock := Lock(item.ID)
			defer unlock()
			errs[n] = conn.Transaction(func(tx *gorm.DB) error {
				_, err := ClaimWindow(tx, uint(n+1), item.ID, day("2024-06-01"), day("2024-06-05"), 1)
				return err
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.True(t, errors.Is(err, types.ErrAvailabilityExceeded))
		}
	}
	require.Equal(t, 1, succeeded)

	var held int64
	require.NoError(t, conn.Model(&models.ReservationWindow{}).Where("status = ?", types.WINDOW_HELD).Count(&held).Error)
	require.EqualValues(t, 1, held)
}

func TestLockOrderingWithSharedItems(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				var unlock func()
				if n%2 == 0 {
					unlock = Lock(10, 11, 12)
				} else {
					unlock = Lock(12, 10)
				}
				unlock()
			}(i)
		}
		wg.Wait()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock ordering deadlocked")
	}
}
