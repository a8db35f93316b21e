package usecase_test

import (
	"context"
	"errors"
	"testing"

	"shrimpshop/internal/domain/model"
	"shrimpshop/internal/testutil"
	"shrimpshop/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var checkoutInput = usecase.PlaceOrderInput{Email: " ann@example.com ", Phone: "01823 555000", AgreeToTerms: true}

// 生体2匹＋モスボール1つをカートに入れる
func fillCart(t *testing.T, a *testutil.App) {
	t.Helper()
	ctx := context.Background()
	_, err := a.Cart.AddToCart(ctx, sid, usecase.AddCartInput{ProductID: a.BlueDream.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = a.Cart.AddToCart(ctx, sid, usecase.AddCartInput{ProductID: a.MossBall.ID, Quantity: 1})
	require.NoError(t, err)
}

func placeOrder(t *testing.T, a *testutil.App) usecase.PlaceOrderOutput {
	t.Helper()
	fillCart(t, a)
	out, err := a.Orders.PlaceOrder(context.Background(), sid, checkoutInput)
	require.NoError(t, err)
	return out
}

func TestPlaceOrder_CreatesPendingOrderAndSession(t *testing.T) {
	a := testutil.NewApp()

	out := placeOrder(t, a)

	assert.Equal(t, "SSS-0000000100004000", out.Reference)
	assert.Equal(t, "https://pay.test/cs_test_1", out.CheckoutURL)
	assert.Equal(t, "13.00", money(out.Subtotal))
	assert.Equal(t, "12.00", money(out.Shipping))
	assert.Equal(t, "25.00", money(out.Total))

	require.Len(t, a.Gateway.Requests, 1)
	req := a.Gateway.Requests[0]
	assert.Equal(t, out.Reference, req.OrderReference)
	assert.Equal(t, "ann@example.com", req.Email)
	assert.Equal(t, []usecase.CheckoutLine{
		{Name: "Blue Dream", UnitAmount: 500, Quantity: 2},
		{Name: "Moss Ball", UnitAmount: 300, Quantity: 1},
		{Name: "Shipping", UnitAmount: 1200, Quantity: 1},
	}, req.Lines)
	assert.Equal(t, out.Reference, req.Metadata["order_reference"])
	assert.Equal(t, "3", req.Metadata["item_count"])

	orders := a.Store.Orders()
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, "cs_test_1", o.CheckoutSessionID)
	assert.Equal(t, "ann@example.com", o.Email)
	assert.Equal(t, "25.00", money(o.TotalAmount))
	assert.Len(t, a.Store.Items(o.ID), 2)

	// 在庫はまだ減らない。カートも残す
	assert.Equal(t, int64(10), a.Store.Product(a.BlueDream.ID).Stock)
	assert.True(t, a.Carts.Has(sid))
}

func TestPlaceOrder_SizeIsPartOfLineName(t *testing.T) {
	a := testutil.NewApp()
	_, err := a.Cart.AddToCart(context.Background(), sid, usecase.AddCartInput{ProductID: a.BlueDream.ID, Quantity: 1, Size: "adult"})
	require.NoError(t, err)

	_, err = a.Orders.PlaceOrder(context.Background(), sid, checkoutInput)
	require.NoError(t, err)

	require.Len(t, a.Gateway.Requests, 1)
	assert.Equal(t, "Blue Dream - adult", a.Gateway.Requests[0].Lines[0].Name)
	items := a.Store.Items(a.Store.Orders()[0].ID)
	require.Len(t, items, 1)
	assert.Equal(t, "adult", items[0].Size)
	assert.Equal(t, "Blue Dream", items[0].ProductName)
}

func TestPlaceOrder_Rejects(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		a := testutil.NewApp()
		fillCart(t, a)

		_, err := a.Orders.PlaceOrder(context.Background(), sid, usecase.PlaceOrderInput{Email: "ann@example.com"})
		assertHTTPError(t, err, 400, "agree_to_terms: you must agree to the terms and conditions")

		_, err = a.Orders.PlaceOrder(context.Background(), sid, usecase.PlaceOrderInput{Email: "nope", AgreeToTerms: true})
		assertHTTPError(t, err, 400, "email: is not a valid email address")
		assert.Empty(t, a.Gateway.Requests)
	})

	t.Run("empty cart", func(t *testing.T) {
		a := testutil.NewApp()

		_, err := a.Orders.PlaceOrder(context.Background(), sid, checkoutInput)
		assertHTTPError(t, err, 400, "Your cart is empty.")
		assert.Empty(t, a.Gateway.Requests)
	})

	t.Run("stock shortage", func(t *testing.T) {
		a := testutil.NewApp()
		fillCart(t, a)
		a.Store.SetStock(a.BlueDream.ID, 1)

		_, err := a.Orders.PlaceOrder(context.Background(), sid, checkoutInput)
		assertHTTPError(t, err, 409, "insufficient stock")
		he, _ := usecase.AsHTTPError(err)
		assert.Equal(t, []string{"Only 1 of Blue Dream available. Please update your cart quantity."}, he.Details)
		assert.Empty(t, a.Gateway.Requests)
		assert.Empty(t, a.Store.Orders())
	})

	t.Run("gateway down", func(t *testing.T) {
		a := testutil.NewApp()
		fillCart(t, a)
		a.Gateway.Err = errors.New("stripe: timeout")

		_, err := a.Orders.PlaceOrder(context.Background(), sid, checkoutInput)
		assertHTTPError(t, err, 502, "Payment service is unavailable. Please try again later.")
		assert.Empty(t, a.Store.Orders())
	})
}

func TestPlaceOrder_ItemInsertFailureLeavesNoOrder(t *testing.T) {
	a := testutil.NewApp()
	fillCart(t, a)
	before, err := a.Cart.GetCart(context.Background(), sid)
	require.NoError(t, err)
	a.Store.CreateItemsErr = errors.New("deadlock detected")

	_, err = a.Orders.PlaceOrder(context.Background(), sid, checkoutInput)
	assertHTTPError(t, err, 500, "db error")

	// 注文ヘッダも一緒に消える
	assert.Empty(t, a.Store.Orders())
	assert.Equal(t, int64(10), a.Store.Product(a.BlueDream.ID).Stock)

	after, err := a.Cart.GetCart(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, before.ItemCount, after.ItemCount)
	assert.Equal(t, money(before.GrandTotal), money(after.GrandTotal))
}

func TestPaymentWebhook_MarksPaidOnce(t *testing.T) {
	a := testutil.NewApp()
	ctx := context.Background()
	out := placeOrder(t, a)
	a.Gateway.Complete("sig-1", "cs_test_1", "ann@example.com")

	require.NoError(t, a.Orders.HandlePaymentWebhook(ctx, []byte(`{}`), "sig-1"))

	o := a.Store.Orders()[0]
	assert.Equal(t, model.OrderStatusPaid, o.Status)
	require.NotNil(t, o.PaymentDate)
	assert.True(t, o.PaymentDate.Equal(a.Clock.T))
	assert.Equal(t, "Ann Diver", o.ShippingName)
	assert.Equal(t, "1 High St", o.ShippingAddress)
	assert.Equal(t, "TA1 1AA", o.ShippingZip)

	assert.Equal(t, int64(8), a.Store.Product(a.BlueDream.ID).Stock)
	assert.Equal(t, int64(19), a.Store.Product(a.MossBall.ID).Stock)

	adjs := a.Store.Adjustments()
	require.Len(t, adjs, 2)
	for _, adj := range adjs {
		assert.Nil(t, adj.ActorUserID)
		assert.Equal(t, "order paid "+out.Reference, adj.Reason)
	}

	assert.Equal(t, []string{out.Reference}, a.Notifier.Confirmations)
	assert.Equal(t, []string{out.Reference}, a.Notifier.Notifications)
	require.Len(t, a.Publisher.Events, 1)
	assert.Equal(t, testutil.PublishedEvent{Type: "order.paid", Reference: out.Reference, To: model.OrderStatusPaid}, a.Publisher.Events[0])

	// 再送
	require.NoError(t, a.Orders.HandlePaymentWebhook(ctx, []byte(`{}`), "sig-1"))
	assert.Equal(t, int64(8), a.Store.Product(a.BlueDream.ID).Stock)
	assert.Len(t, a.Store.Adjustments(), 2)
	assert.Len(t, a.Notifier.Confirmations, 1)
	assert.Len(t, a.Publisher.Events, 1)
}

func TestConfirmPayment_ReportsAlreadyProcessed(t *testing.T) {
	a := testutil.NewApp()
	placeOrder(t, a)
	c := model.PaymentCompletion{SessionID: "cs_test_1", Email: "ann@example.com"}

	first, err := a.Orders.ConfirmPayment(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)
	assert.Equal(t, "paid", first.Order.Status)
	assert.Len(t, first.Order.Items, 2)

	second, err := a.Orders.ConfirmPayment(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
}

func TestConfirmPayment_CancelledOrderIsFlagged(t *testing.T) {
	a := testutil.NewApp()
	out := placeOrder(t, a)
	id := a.Store.Orders()[0].ID
	_, err := a.AdminOrders.UpdateStatus(context.Background(), 1, id, usecase.AdminUpdateOrderStatusInput{Status: "cancelled"})
	require.NoError(t, err)

	res, err := a.Orders.ConfirmPayment(context.Background(), model.PaymentCompletion{SessionID: "cs_test_1"})
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)

	// 状態も在庫も動かさず、エラーログで残す
	assert.Equal(t, model.OrderStatusCancelled, a.Store.Orders()[0].Status)
	assert.Equal(t, int64(10), a.Store.Product(a.BlueDream.ID).Stock)
	assert.Empty(t, a.Notifier.Confirmations)

	entries := a.Logs.FilterMessage("payment received for cancelled order").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, out.Reference, fields["order_reference"])
	assert.Equal(t, "cs_test_1", fields["checkout_session_id"])
}

func TestPaymentWebhook_NotificationFailureKeepsOrderPaid(t *testing.T) {
	a := testutil.NewApp()
	placeOrder(t, a)
	a.Notifier.Fail = true
	a.Publisher.Err = errors.New("kafka: broker down")
	a.Gateway.Complete("sig-1", "cs_test_1", "ann@example.com")

	require.NoError(t, a.Orders.HandlePaymentWebhook(context.Background(), nil, "sig-1"))
	assert.Equal(t, model.OrderStatusPaid, a.Store.Orders()[0].Status)
}

func TestPaymentWebhook_LateShortageIsSkipped(t *testing.T) {
	a := testutil.NewApp()
	placeOrder(t, a)
	a.Store.SetStock(a.BlueDream.ID, 1)
	a.Gateway.Complete("sig-1", "cs_test_1", "ann@example.com")

	require.NoError(t, a.Orders.HandlePaymentWebhook(context.Background(), nil, "sig-1"))

	assert.Equal(t, model.OrderStatusPaid, a.Store.Orders()[0].Status)
	assert.Equal(t, int64(1), a.Store.Product(a.BlueDream.ID).Stock)
	assert.Equal(t, int64(19), a.Store.Product(a.MossBall.ID).Stock)
	adjs := a.Store.Adjustments()
	require.Len(t, adjs, 1)
	assert.Equal(t, a.MossBall.ID, adjs[0].ProductID)
	assert.Equal(t, int64(-1), adjs[0].Delta)
}

func TestPaymentWebhook_Rejects(t *testing.T) {
	a := testutil.NewApp()
	placeOrder(t, a)

	err := a.Orders.HandlePaymentWebhook(context.Background(), []byte(`{}`), "forged")
	assertHTTPError(t, err, 400, "invalid webhook")

	a.Gateway.Complete("sig-x", "cs_unknown", "ann@example.com")
	err = a.Orders.HandlePaymentWebhook(context.Background(), []byte(`{}`), "sig-x")
	assertHTTPError(t, err, 404, "order not found")

	assert.Equal(t, model.OrderStatusPending, a.Store.Orders()[0].Status)
	assert.Empty(t, a.Notifier.Confirmations)
}

func TestPaymentWebhook_IgnoresOtherEvents(t *testing.T) {
	a := testutil.NewApp()
	placeOrder(t, a)
	a.Gateway.Events["sig-other"] = model.PaymentEvent{ID: "evt_2", Type: "payment_intent.created"}

	require.NoError(t, a.Orders.HandlePaymentWebhook(context.Background(), nil, "sig-other"))
	assert.Equal(t, model.OrderStatusPending, a.Store.Orders()[0].Status)
}

func TestGetOrderByReference(t *testing.T) {
	a := testutil.NewApp()
	out := placeOrder(t, a)

	got, err := a.Orders.GetOrderByReference(context.Background(), "sss-0000000100004000")
	require.NoError(t, err)
	assert.Equal(t, out.Reference, got.Reference)
	assert.Equal(t, "pending", got.Status)
	assert.Len(t, got.Items, 2)
	assert.Empty(t, got.Notes)

	_, err = a.Orders.GetOrderByReference(context.Background(), "ORD-1")
	assertHTTPError(t, err, 404, "not found")

	_, err = a.Orders.GetOrderByReference(context.Background(), "SSS-FFFFFFFFFFFFFFFF")
	assertHTTPError(t, err, 404, "not found")
}
