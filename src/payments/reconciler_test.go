package payments

import (
	"ccr/src/db"
	"ccr/src/lib"
	"ccr/src/models"
	"ccr/src/rentals"
	"ccr/src/types"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeProvider struct {
	opened        int
	refunds       []string
	expired       []string
	failing       bool
	refundFailing bool
}

func (f *fakeProvider) OpenCheckoutSession(ctx context.Context, params *lib.CheckoutParams) (*lib.CheckoutResult, error) {
	if f.failing {
		return nil, fmt.Errorf("%w: gateway down", types.ErrProviderError)
	}
	f.opened++
	return &lib.CheckoutResult{
		SessionID: fmt.Sprintf("cs_test_%d", f.opened),
		URL:       fmt.Sprintf("https://checkout.test/cs_test_%d", f.opened),
	}, nil
}

func (f *fakeProvider) IssueRefund(ctx context.Context, paymentIntentID string, amount float64) (string, error) {
	if f.refundFailing {
		return "", fmt.Errorf("%w: gateway down", types.ErrProviderError)
	}
	f.refunds = append(f.refunds, paymentIntentID)
	return fmt.Sprintf("re_test_%d", len(f.refunds)), nil
}

// gatedProvider parks every OpenCheckoutSession call until the test
// releases it, so overlapping opens can be choreographed.
type gatedProvider struct {
	fakeProvider
	entered chan struct{}
	release chan struct{}
}

func (p *gatedProvider) OpenCheckoutSession(ctx context.Context, params *lib.CheckoutParams) (*lib.CheckoutResult, error) {
	p.entered <- struct{}{}
	<-p.release
	return p.fakeProvider.OpenCheckoutSession(ctx, params)
}

type fakeNotifier struct {
	sent chan types.NotificationKind
}

func (f *fakeNotifier) Notify(kind types.NotificationKind, email, subject, body string) error {
	f.sent <- kind
	return nil
}

func (f *fakeProvider) ExpireSession(ctx context.Context, sessionID string) error {
	f.expired = append(f.expired, sessionID)
	return nil
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(
		&models.User{},
		&models.Item{},
		&models.Rental{},
		&models.RentalItem{},
		&models.ReservationWindow{},
		&models.CheckoutSession{},
		&models.WebhookEvent{},
	))
	db.NewDB(conn)
	return conn
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedRental(t *testing.T, conn *gorm.DB) *models.Rental {
	t.Helper()
	item := models.Item{Name: "Xbox Console", Kind: types.ITEM_CONSOLE, DailyPrice: 500, SecurityDeposit: 2000, StockQuantity: 2, Active: true}
	require.NoError(t, conn.Create(&item).Error)
	rental, err := rentals.CreateRental(1, &types.CreateRentalRequestBody{
		Items:      []types.RentalLineItem{{ItemID: item.ID, Qty: 1}},
		RentalType: types.RENTAL_TYPE_DAILY,
		StartDate:  "2024-06-01",
		EndDate:    "2024-06-05",
	}, day("2024-05-30"))
	require.NoError(t, err)
	return rental
}

func TestOpenCheckoutSupersedesOpenSession(t *testing.T) {
	conn := testDB(t)
	fake := &fakeProvider{}
	lib.NewPaymentProvider(fake)
	rental := seedRental(t, conn)

	first, err := OpenCheckout(rental.ID, types.PAYMENT_TYPE_RENTAL, day("2024-05-30"))
	require.NoError(t, err)
	assert.Equal(t, float64(2500), first.Amount)

	second, err := OpenCheckout(rental.ID, types.PAYMENT_TYPE_RENTAL, day("2024-05-30"))
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Contains(t, fake.expired, first.SessionID)

	var old models.CheckoutSession
	require.NoError(t, conn.Where("session_id = ?", first.SessionID).First(&old).Error)
	assert.Equal(t, types.SESSION_CANCELED, old.Status)
}

func TestOpenCheckoutProviderFailure(t *testing.T) {
	conn := testDB(t)
	lib.NewPaymentProvider(&fakeProvider{failing: true})
	rental := seedRental(t, conn)

	_, err := OpenCheckout(rental.ID, types.PAYMENT_TYPE_RENTAL, day("2024-05-30"))
	require.Error(t, err)

	// No half-made local session.
	var count int64
	require.NoError(t, conn.Model(&models.CheckoutSession{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestOpenCheckoutConcurrentCallsLeaveOneOpenSession(t *testing.T) {
	conn := testDB(t)
	gate := &gatedProvider{entered: make(chan struct{}, 2), release: make(chan struct{})}
	lib.NewPaymentProvider(gate)
	rental := seedRental(t, conn)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := OpenCheckout(rental.ID, types.PAYMENT_TYPE_RENTAL, day("2024-05-30"))
			errs <- err
		}()
	}
	// Both calls are in flight; let each one through the provider in turn.
	for i := 0; i < 2; i++ {
		<-gate.entered
		gate.release <- struct{}{}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var open int64
	err := conn.
		Model(&models.CheckoutSession{}).
		Where("rental_id = ? AND status = ?", rental.ID, types.SESSION_OPEN).
		Count(&open).
		Error
	require.NoError(t, err)
	assert.EqualValues(t, 1, open)
}

func TestRefundDepositRetriesAfterProviderFailure(t *testing.T) {
	conn := testDB(t)
	fake := &fakeProvider{refundFailing: true}
	lib.NewPaymentProvider(fake)

	rental := models.Rental{
		RentalNumber:    "CC-RETRY1",
		UserID:          1,
		Status:          types.RENTAL_RETURNED,
		PaymentStatus:   types.PAYMENT_PAID,
		StartDate:       day("2024-06-01"),
		EndDate:         day("2024-06-05"),
		SecurityDeposit: 2000,
	}
	require.NoError(t, conn.Create(&rental).Error)
	session := models.CheckoutSession{
		SessionID:       "cs_retry1",
		RentalID:        rental.ID,
		PaymentType:     types.PAYMENT_TYPE_DEPOSIT,
		Amount:          2000,
		Status:          types.SESSION_COMPLETED,
		ExpiresAt:       day("2024-06-01"),
		PaymentIntentID: "pi_retry1",
	}
	require.NoError(t, conn.Create(&session).Error)

	_, err := RefundDeposit(rental.ID)
	require.Error(t, err)
	assert.Empty(t, fake.refunds)

	// The failed attempt must not latch; the provider recovering is enough.
	fake.refundFailing = false
	refundID, err := RefundDeposit(rental.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, refundID)
	assert.Equal(t, []string{"pi_retry1"}, fake.refunds)
}

func TestCompletedEventConfirmsRental(t *testing.T) {
	conn := testDB(t)
	lib.NewPaymentProvider(&fakeProvider{})
	rental := seedRental(t, conn)
	session, err := OpenCheckout(rental.ID, types.PAYMENT_TYPE_RENTAL, day("2024-05-30"))
	require.NoError(t, err)

	event := &types.PaymentEvent{
		EventID:         "evt_1",
		Type:            types.EVENT_CHECKOUT_COMPLETED,
		SessionID:       session.SessionID,
		PaymentIntentID: "pi_1",
	}
	require.NoError(t, Apply(event, day("2024-05-31")))

	got, err := rentals.GetRental(rental.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RENTAL_CONFIRMED, got.Status)
	assert.Equal(t, types.PAYMENT_PAID, got.PaymentStatus)

	var sess models.CheckoutSession
	require.NoError(t, conn.Where("session_id = ?", session.SessionID).First(&sess).Error)
	assert.Equal(t, types.SESSION_COMPLETED, sess.Status)
	assert.Equal(t, "pi_1", sess.PaymentIntentID)
}

func TestCompletedEventSendsPaymentConfirmation(t *testing.T) {
	conn := testDB(t)
	lib.NewPaymentProvider(&fakeProvider{})
	notifier := &fakeNotifier{sent: make(chan types.NotificationKind, 1)}
	lib.NewNotifier(notifier)

	user := models.User{Email: "renter@example.com", Name: "Renter"}
	require.NoError(t, conn.Create(&user).Error)
	rental := seedRental(t, conn)
	session, err := OpenCheckout(rental.ID, types.PAYMENT_TYPE_RENTAL, day("2024-05-30"))
	require.NoError(t, err)

	require.NoError(t, Apply(&types.PaymentEvent{
		EventID:         "evt_mail_1",
		Type:            types.EVENT_CHECKOUT_COMPLETED,
		SessionID:       session.SessionID,
		PaymentIntentID: "pi_mail_1",
	}, day("2024-05-31")))

	// The mail goes out after the reconciliation commits.
	select {
	case kind := <-notifier.sent:
		assert.Equal(t, types.NOTIFY_PAYMENT_CONFIRMATION, kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no confirmation mail sent")
	}
}

func TestDuplicateEventAppliedOnce(t *testing.T) {
	conn := testDB(t)
	lib.NewPaymentProvider(&fakeProvider{})
	rental := seedRental(t, conn)
	session, err := OpenCheckout(rental.ID, types.PAYMENT_TYPE_RENTAL, day("2024-05-30"))
	require.NoError(t, err)

	event := &types.PaymentEvent{
		EventID:         "evt_dup",
		Type:            types.EVENT_CHECKOUT_COMPLETED,
		SessionID:       session.SessionID,
		PaymentIntentID: "pi_1",
	}
	require.NoError(t, Apply(event, day("2024-05-31")))
	require.NoError(t, Apply(event, day("2024-05-31")))
	require.NoError(t, Apply(event, day("2024-06-01")))

	var journal int64
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("event_id = ?", "evt_dup").Count(&journal).Error)
	assert.EqualValues(t, 1, journal)

	got, err := rentals.GetRental(rental.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RENTAL_CONFIRMED, got.Status)
}

func TestCompletedEventForCancelledRental(t *testing.T) {
	conn := testDB(t)
	lib.NewPaymentProvider(&fakeProvider{})
	rental := seedRental(t, conn)
	session, err := OpenCheckout(rental.ID, types.PAYMENT_TYPE_RENTAL, day("2024-05-30"))
	require.NoError(t, err)
	_, err = rentals.Cancel(rental.ID)
	require.NoError(t, err)

	event := &types.PaymentEvent{
		EventID:         "evt_cancelled",
		Type:            types.EVENT_CHECKOUT_COMPLETED,
		SessionID:       session.SessionID,
		PaymentIntentID: "pi_1",
	}
	require.NoError(t, Apply(event, day("2024-05-31")))

	// The rental stays dead and unpaid; only the journal and the session
	// record the odd payment.
	got, err := rentals.GetRental(rental.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RENTAL_CANCELED, got.Status)
	assert.Equal(t, types.PAYMENT_UNPAID, got.PaymentStatus)

	var row models.WebhookEvent
	require.NoError(t, conn.Where("event_id = ?", "evt_cancelled").First(&row).Error)
	assert.True(t, row.Processed)
}

func TestExpiredEventLeavesRentalPending(t *testing.T) {
	conn := testDB(t)
	lib.NewPaymentProvider(&fakeProvider{})
	rental := seedRental(t, conn)
	session, err := OpenCheckout(rental.ID, types.PAYMENT_TYPE_RENTAL, day("2024-05-30"))
	require.NoError(t, err)

	event := &types.PaymentEvent{
		EventID:   "evt_exp",
		Type:      types.EVENT_CHECKOUT_EXPIRED,
		SessionID: session.SessionID,
	}
	require.NoError(t, Apply(event, day("2024-05-31")))

	var sess models.CheckoutSession
	require.NoError(t, conn.Where("session_id = ?", session.SessionID).First(&sess).Error)
	assert.Equal(t, types.SESSION_EXPIRED, sess.Status)

	got, err := rentals.GetRental(rental.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RENTAL_PENDING, got.Status)
}

func TestCompletedAfterExpiryStillCounts(t *testing.T) {
	conn := testDB(t)
	lib.NewPaymentProvider(&fakeProvider{})
	rental := seedRental(t, conn)
	session, err := OpenCheckout(rental.ID, types.PAYMENT_TYPE_RENTAL, day("2024-05-30"))
	require.NoError(t, err)

	require.NoError(t, Apply(&types.PaymentEvent{
		EventID:   "evt_exp_first",
		Type:      types.EVENT_CHECKOUT_EXPIRED,
		SessionID: session.SessionID,
	}, day("2024-05-31")))
	require.NoError(t, Apply(&types.PaymentEvent{
		EventID:         "evt_then_paid",
		Type:            types.EVENT_CHECKOUT_COMPLETED,
		SessionID:       session.SessionID,
		PaymentIntentID: "pi_late",
	}, day("2024-05-31")))

	got, err := rentals.GetRental(rental.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RENTAL_CONFIRMED, got.Status)
	assert.Equal(t, types.PAYMENT_PAID, got.PaymentStatus)
}

func TestRefundEventMarksDeposit(t *testing.T) {
	conn := testDB(t)
	lib.NewPaymentProvider(&fakeProvider{})
	rental := seedRental(t, conn)
	session, err := OpenCheckout(rental.ID, types.PAYMENT_TYPE_DEPOSIT, day("2024-05-30"))
	require.NoError(t, err)

	require.NoError(t, Apply(&types.PaymentEvent{
		EventID:         "evt_dep_paid",
		Type:            types.EVENT_CHECKOUT_COMPLETED,
		SessionID:       session.SessionID,
		PaymentIntentID: "pi_dep",
	}, day("2024-05-31")))
	require.NoError(t, Apply(&types.PaymentEvent{
		EventID:         "evt_dep_refund",
		Type:            types.EVENT_REFUND_COMPLETED,
		PaymentIntentID: "pi_dep",
	}, day("2024-06-10")))

	got, err := rentals.GetRental(rental.ID)
	require.NoError(t, err)
	assert.True(t, got.DepositRefunded)
}

func TestUnknownEventKindIsJournaledNoOp(t *testing.T) {
	conn := testDB(t)
	lib.NewPaymentProvider(&fakeProvider{})
	seedRental(t, conn)

	require.NoError(t, Apply(&types.PaymentEvent{
		EventID: "evt_unknown",
		Type:    "subscription.created",
	}, day("2024-05-31")))

	var row models.WebhookEvent
	require.NoError(t, conn.Where("event_id = ?", "evt_unknown").First(&row).Error)
	assert.True(t, row.Processed)
}

func TestUnknownSessionIsNoOp(t *testing.T) {
	conn := testDB(t)
	lib.NewPaymentProvider(&fakeProvider{})
	seedRental(t, conn)

	require.NoError(t, Apply(&types.PaymentEvent{
		EventID:   "evt_ghost",
		Type:      types.EVENT_CHECKOUT_COMPLETED,
		SessionID: "cs_ghost",
	}, day("2024-05-31")))

	var count int64
	require.NoError(t, conn.Model(&models.Rental{}).Where("payment_status = ?", types.PAYMENT_PAID).Count(&count).Error)
	assert.Zero(t, count)
}
