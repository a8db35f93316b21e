package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"shrimpshop/internal/domain/model"
	"shrimpshop/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testSecret = "whsec_test_secret"

type fakeSessions struct {
	got *stripe.CheckoutSessionParams
	err error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_123", URL: "https://checkout.stripe.test/cs_test_123"}, nil
}

func testGateway(sessions sessionCreator, secret string) *StripeGateway {
	return newStripeGateway(sessions, StripeConfig{
		WebhookSecret:    secret,
		Currency:         "GBP",
		AllowedCountries: []string{"GB"},
		SiteURL:          "https://shop.test/",
	})
}

func sign(t *testing.T, payload string, secret string) string {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return sp.Header
}

const completedPayload = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "created": 1760000000,
  "data": {"object": {
    "id": "cs_test_123",
    "object": "checkout.session",
    "customer_details": {"email": "ann@example.com"},
    "shipping_details": {
      "name": "Ann Diver",
      "address": {"line1": "1 High St", "line2": "Flat 2", "city": "Taunton", "state": "Somerset", "postal_code": "TA1 1AA", "country": "GB"}
    }
  }}
}`

func TestStripeGateway_CreateCheckoutSession(t *testing.T) {
	fs := &fakeSessions{}
	g := testGateway(fs, testSecret)

	out, err := g.CreateCheckoutSession(context.Background(), usecase.CheckoutSessionRequest{
		OrderReference: "SSS-ABCDEF0123456789",
		Email:          "ann@example.com",
		Lines: []usecase.CheckoutLine{
			{Name: "Blue Dream", UnitAmount: 500, Quantity: 2},
			{Name: "Shipping", UnitAmount: 1200, Quantity: 1},
		},
		Metadata: map[string]string{"order_reference": "SSS-ABCDEF0123456789"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", out.ID)

	p := fs.got
	require.NotNil(t, p)
	require.Len(t, p.LineItems, 2)
	assert.Equal(t, "gbp", *p.LineItems[0].PriceData.Currency)
	assert.Equal(t, int64(500), *p.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, int64(2), *p.LineItems[0].Quantity)
	assert.Equal(t, "Shipping", *p.LineItems[1].PriceData.ProductData.Name)
	assert.Equal(t, "https://shop.test/checkout/cancel?ref=SSS-ABCDEF0123456789", *p.CancelURL)
	assert.Contains(t, *p.SuccessURL, "session_id={CHECKOUT_SESSION_ID}")
	assert.Equal(t, []*string{stripe.String("GB")}, p.ShippingAddressCollection.AllowedCountries)
	assert.Equal(t, "SSS-ABCDEF0123456789", p.Metadata["order_reference"])
}

func TestStripeGateway_CreateCheckoutSession_Error(t *testing.T) {
	g := testGateway(&fakeSessions{err: errors.New("card network down")}, testSecret)
	_, err := g.CreateCheckoutSession(context.Background(), usecase.CheckoutSessionRequest{OrderReference: "SSS-1"})
	assert.ErrorContains(t, err, "card network down")
}

func TestStripeGateway_ParseWebhook_Completed(t *testing.T) {
	g := testGateway(&fakeSessions{}, testSecret)

	ev, err := g.ParseWebhook([]byte(completedPayload), sign(t, completedPayload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentEventCheckoutCompleted, ev.Type)
	require.NotNil(t, ev.Completion)

	c := ev.Completion
	assert.Equal(t, "cs_test_123", c.SessionID)
	assert.Equal(t, "ann@example.com", c.Email)
	assert.Equal(t, time.Unix(1760000000, 0).UTC(), c.PaidAt)
	require.NotNil(t, c.Shipping)
	assert.Equal(t, "Ann Diver", c.Shipping.Name)
	assert.Equal(t, "1 High St\nFlat 2", c.Shipping.Address())
	assert.Equal(t, "TA1 1AA", c.Shipping.PostalCode)
}

func TestStripeGateway_ParseWebhook_CollectedInformation(t *testing.T) {
	payload := `{"id":"evt_2","object":"event","type":"checkout.session.completed","data":{"object":{
	  "id":"cs_test_9","customer_email":"bob@example.com",
	  "collected_information":{"shipping_details":{"name":"Bob","address":{"line1":"2 Quay","city":"Bristol","postal_code":"BS1 1AA","country":"GB"}}}}}}`
	g := testGateway(&fakeSessions{}, testSecret)

	ev, err := g.ParseWebhook([]byte(payload), sign(t, payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", ev.Completion.Email)
	assert.Equal(t, "Bristol", ev.Completion.Shipping.City)
}

func TestStripeGateway_ParseWebhook_OtherEventIsPassedThrough(t *testing.T) {
	payload := `{"id":"evt_3","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_1"}}}`
	g := testGateway(&fakeSessions{}, testSecret)

	ev, err := g.ParseWebhook([]byte(payload), sign(t, payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.created", ev.Type)
	assert.Nil(t, ev.Completion)
}

func TestStripeGateway_ParseWebhook_Rejects(t *testing.T) {
	g := testGateway(&fakeSessions{}, testSecret)

	_, err := g.ParseWebhook([]byte(completedPayload), "")
	assert.ErrorIs(t, err, usecase.ErrInvalidWebhook)

	_, err = g.ParseWebhook([]byte(completedPayload), sign(t, completedPayload, "whsec_other"))
	assert.ErrorIs(t, err, usecase.ErrInvalidWebhook)

	_, err = g.ParseWebhook([]byte(completedPayload), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, usecase.ErrInvalidWebhook)

	garbage := `not json`
	_, err = g.ParseWebhook([]byte(garbage), sign(t, garbage, testSecret))
	assert.ErrorIs(t, err, usecase.ErrInvalidWebhook)
}

func TestStripeGateway_ParseWebhook_NoSecretFailsClosed(t *testing.T) {
	g := testGateway(&fakeSessions{}, "")
	_, err := g.ParseWebhook([]byte(completedPayload), sign(t, completedPayload, ""))
	assert.ErrorIs(t, err, usecase.ErrInvalidWebhook)
}
