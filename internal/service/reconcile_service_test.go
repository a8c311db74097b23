package service

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warungku/backend/internal/entity"
	"github.com/warungku/backend/internal/gateway"
)

const testServerKey = "test-server-key"

type testEnv struct {
	intents   *fakeIntentRepo
	orders    *fakeOrderRepo
	products  *fakeProductRepo
	stock     *fakeStockLedger
	publisher *fakePublisher
	sessions  *fakeSessions

	checkout  *CheckoutService
	reconcile *ReconcileService
	orderSvc  *OrderService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		intents: newFakeIntentRepo(),
		orders:  newFakeOrderRepo(),
		products: newFakeProductRepo(
			entity.Product{ID: "prod-a", Name: "Nasi Goreng", Price: 10000, Stock: 5},
			entity.Product{ID: "prod-b", Name: "Sate Ayam", Price: 20000, Stock: 3},
		),
		publisher: &fakePublisher{},
		sessions:  &fakeSessions{},
	}
	env.stock = newFakeStockLedger(env.products)

	env.checkout = NewCheckoutService(env.intents, env.orders, env.products, env.stock, env.sessions, env.publisher, 30*time.Minute)
	env.reconcile = NewReconcileService(env.orders, env.intents, env.stock, env.publisher, gateway.NewSignatureVerifier(testServerKey))
	env.orderSvc = NewOrderService(env.orders, env.products, env.stock, env.publisher)
	return env
}

// doCheckout runs the standard 2x prod-a + 1x prod-b checkout (total 40000).
func (env *testEnv) doCheckout(t *testing.T) *CheckoutResult {
	t.Helper()
	result, err := env.checkout.Checkout(context.Background(), &CheckoutRequest{
		Items: []CheckoutItem{
			{ProductID: "prod-a", Quantity: 2},
			{ProductID: "prod-b", Quantity: 1},
		},
		OrderType:   entity.OrderTypeDineIn,
		TableNumber: "12",
	})
	require.NoError(t, err)
	return result
}

func signedNotification(paymentID, transactionStatus, grossAmount string) *gateway.Notification {
	statusCode := "200"
	sum := sha512.Sum512([]byte(paymentID + statusCode + grossAmount + testServerKey))
	return &gateway.Notification{
		OrderID:           paymentID,
		StatusCode:        statusCode,
		GrossAmount:       grossAmount,
		TransactionStatus: transactionStatus,
		SignatureKey:      hex.EncodeToString(sum[:]),
		PaymentType:       "qris",
	}
}

func TestSettlementWebhookConvertsIntentToPaidOrder(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	result := env.doCheckout(t)

	require.EqualValues(t, 40000, result.Order.TotalPrice)
	require.Equal(t, entity.PaymentPending, result.Order.Payment.Status)

	err := env.reconcile.HandleNotification(ctx, signedNotification(result.PaymentID, "settlement", "40000.00"))
	require.NoError(t, err)

	order, err := env.orders.FindByPaymentID(ctx, result.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, entity.PaymentPaid, order.Payment.Status)
	require.Equal(t, "qris", order.Payment.Method)
	require.NotNil(t, order.Payment.PaidAt)

	require.Equal(t, 3, env.products.stock("prod-a"))
	require.Equal(t, 2, env.products.stock("prod-b"))

	intent, err := env.intents.FindByPaymentID(ctx, result.PaymentID)
	require.NoError(t, err)
	require.Nil(t, intent, "intent must be deleted once settled")

	require.Equal(t, 1, env.publisher.countByType("OrderPaid"))

	// A finalize call arriving after the webhook is a pure no-op that
	// returns the same order.
	finalized, err := env.reconcile.Finalize(ctx, result.PaymentID)
	require.NoError(t, err)
	require.Equal(t, order.ID, finalized.ID)
	require.Equal(t, entity.PaymentPaid, finalized.Payment.Status)
	require.Equal(t, 3, env.products.stock("prod-a"))
	require.Equal(t, 1, env.publisher.countByType("OrderPaid"))
}

func TestConcurrentReconcileIsExactlyOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	result := env.doCheckout(t)

	const callers = 16
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(finalize bool) {
			defer wg.Done()
			if finalize {
				env.reconcile.Finalize(ctx, result.PaymentID)
			} else {
				env.reconcile.Reconcile(ctx, result.PaymentID, gateway.OutcomePaid, "qris")
			}
		}(i%2 == 0)
	}
	wg.Wait()

	require.Equal(t, 1, env.orders.count(), "exactly one order per payment id")
	order, err := env.orders.FindByPaymentID(ctx, result.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, entity.PaymentPaid, order.Payment.Status)

	require.Equal(t, 3, env.products.stock("prod-a"), "stock decremented once, not %d times", callers)
	require.Equal(t, 2, env.products.stock("prod-b"))
	require.Equal(t, 1, env.publisher.countByType("OrderPaid"))
}

func TestReconcileUnknownPaymentIsAcknowledgedNoop(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	order, err := env.reconcile.Reconcile(ctx, "pay-never-existed", gateway.OutcomePaid, "")
	require.NoError(t, err, "late or duplicate webhooks must not error")
	require.Nil(t, order)
	require.Equal(t, 0, env.orders.count())
	require.Equal(t, 5, env.products.stock("prod-a"))
	require.Equal(t, 0, env.publisher.countByType("OrderPaid"))
}

func TestExpireWebhookTearsDownAttempt(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	result := env.doCheckout(t)

	err := env.reconcile.HandleNotification(ctx, signedNotification(result.PaymentID, "expire", "40000.00"))
	require.NoError(t, err)

	intent, err := env.intents.FindByPaymentID(ctx, result.PaymentID)
	require.NoError(t, err)
	require.Nil(t, intent)

	order, err := env.orders.FindByPaymentID(ctx, result.PaymentID)
	require.NoError(t, err)
	require.Nil(t, order)

	require.Equal(t, 5, env.products.stock("prod-a"), "expired attempt must not touch stock")
	require.Equal(t, 3, env.products.stock("prod-b"))
}

func TestLatePaidWebhookDoesNotResurrectCanceledAttempt(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	result := env.doCheckout(t)

	require.NoError(t, env.checkout.CancelUnpaid(ctx, result.Order.ID))
	require.Equal(t, 5, env.products.stock("prod-a"))

	err := env.reconcile.HandleNotification(ctx, signedNotification(result.PaymentID, "settlement", "40000.00"))
	require.NoError(t, err)

	order, err := env.orders.FindByPaymentID(ctx, result.PaymentID)
	require.NoError(t, err)
	require.Nil(t, order, "canceled attempt must stay canceled")
	require.Equal(t, 5, env.products.stock("prod-a"))
	require.Equal(t, 3, env.products.stock("prod-b"))
	require.Equal(t, 0, env.publisher.countByType("OrderPaid"))
}

func TestReconcileRecreatesOrderFromIntentWhenRowIsMissing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	result := env.doCheckout(t)

	// Simulate a crash between session creation and order creation: the
	// intent survives, the pending order row does not.
	deleted, err := env.orders.DeleteUnpaid(ctx, result.Order.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	// The pending order never took stock, so its ledger must not block
	// the replacement order's decrement.

	order, err := env.reconcile.Reconcile(ctx, result.PaymentID, gateway.OutcomePaid, "gopay")
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, entity.PaymentPaid, order.Payment.Status)
	require.EqualValues(t, 40000, order.TotalPrice)
	require.Len(t, order.Items, 2)

	require.Equal(t, 3, env.products.stock("prod-a"))
	intent, err := env.intents.FindByPaymentID(ctx, result.PaymentID)
	require.NoError(t, err)
	require.Nil(t, intent)
}

func TestPendingStatusIsAcknowledgedWithoutAction(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	result := env.doCheckout(t)

	err := env.reconcile.HandleNotification(ctx, signedNotification(result.PaymentID, "pending", "40000.00"))
	require.NoError(t, err)

	order, err := env.orders.FindByPaymentID(ctx, result.PaymentID)
	require.NoError(t, err)
	require.Equal(t, entity.PaymentPending, order.Payment.Status)
	require.Equal(t, 5, env.products.stock("prod-a"))
}

func TestNotificationWithBadSignatureIsRejectedWithoutSideEffects(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	result := env.doCheckout(t)

	n := signedNotification(result.PaymentID, "settlement", "40000.00")
	n.GrossAmount = "1.00" // tampered after signing

	err := env.reconcile.HandleNotification(ctx, n)
	require.ErrorIs(t, err, entity.ErrSignature)

	order, err := env.orders.FindByPaymentID(ctx, result.PaymentID)
	require.NoError(t, err)
	require.Equal(t, entity.PaymentPending, order.Payment.Status)
	require.Equal(t, 5, env.products.stock("prod-a"))

	intent, err := env.intents.FindByPaymentID(ctx, result.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, intent)
}

func TestFinalizeResolvesIntentAndOrderIDs(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	result := env.doCheckout(t)

	intent, err := env.intents.FindByPaymentID(ctx, result.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, intent)

	// Finalize by intent id.
	order, err := env.reconcile.Finalize(ctx, intent.ID)
	require.NoError(t, err)
	require.Equal(t, entity.PaymentPaid, order.Payment.Status)

	// Finalize again by order id: idempotent.
	again, err := env.reconcile.Finalize(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ID, again.ID)
	require.Equal(t, 3, env.products.stock("prod-a"))
}

func TestFinalizeUnknownIDIsNotFound(t *testing.T) {
	env := newTestEnv()

	_, err := env.reconcile.Finalize(context.Background(), "no-such-id")
	require.ErrorIs(t, err, entity.ErrNotFound)
}
