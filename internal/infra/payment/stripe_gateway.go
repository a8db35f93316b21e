package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"shrimpshop/internal/domain/model"
	"shrimpshop/internal/usecase"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	Currency         string
	AllowedCountries []string
	// 決済後の戻り先のベースURL
	SiteURL string
}

type StripeGateway struct {
	sessions      sessionCreator
	webhookSecret string
	currency      string
	countries     []string
	siteURL       string
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return newStripeGateway(sc.CheckoutSessions, cfg)
}

func newStripeGateway(sessions sessionCreator, cfg StripeConfig) *StripeGateway {
	return &StripeGateway{
		sessions:      sessions,
		webhookSecret: cfg.WebhookSecret,
		currency:      strings.ToLower(cfg.Currency),
		countries:     cfg.AllowedCountries,
		siteURL:       strings.TrimRight(cfg.SiteURL, "/"),
	}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req usecase.CheckoutSessionRequest) (usecase.CheckoutSession, error) {
	ref := url.QueryEscape(req.OrderReference)
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CustomerEmail:      stripe.String(req.Email),
		ClientReferenceID:  stripe.String(req.OrderReference),
		SuccessURL:         stripe.String(g.siteURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}&ref=" + ref),
		CancelURL:          stripe.String(g.siteURL + "/checkout/cancel?ref=" + ref),
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(g.countries),
		},
	}
	params.Context = ctx

	for _, l := range req.Lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(l.Name),
				},
				UnitAmount: stripe.Int64(l.UnitAmount),
			},
			Quantity: stripe.Int64(l.Quantity),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.sessions.New(params)
	if err != nil {
		return usecase.CheckoutSession{}, fmt.Errorf("stripe checkout session: %w", err)
	}
	return usecase.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

type stripeAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type stripeShipping struct {
	Name    string        `json:"name"`
	Address stripeAddress `json:"address"`
}

// checkout.session.completed の data.object で使う項目だけ
type completedSession struct {
	ID              string `json:"id"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	ShippingDetails      *stripeShipping `json:"shipping_details"`
	CollectedInformation *struct {
		ShippingDetails *stripeShipping `json:"shipping_details"`
	} `json:"collected_information"`
}

// 署名の検証に失敗したら中身は読まない
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (model.PaymentEvent, error) {
	if g.webhookSecret == "" {
		return model.PaymentEvent{}, fmt.Errorf("%w: webhook secret not configured", usecase.ErrInvalidWebhook)
	}
	if signature == "" {
		return model.PaymentEvent{}, fmt.Errorf("%w: missing signature", usecase.ErrInvalidWebhook)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return model.PaymentEvent{}, fmt.Errorf("%w: %v", usecase.ErrInvalidWebhook, err)
	}

	out := model.PaymentEvent{ID: ev.ID, Type: string(ev.Type)}
	if out.Type != model.PaymentEventCheckoutCompleted {
		return out, nil
	}
	if ev.Data == nil {
		return model.PaymentEvent{}, fmt.Errorf("%w: missing data", usecase.ErrInvalidWebhook)
	}

	var s completedSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return model.PaymentEvent{}, fmt.Errorf("%w: decode session: %v", usecase.ErrInvalidWebhook, err)
	}
	if s.ID == "" {
		return model.PaymentEvent{}, fmt.Errorf("%w: missing session id", usecase.ErrInvalidWebhook)
	}

	c := &model.PaymentCompletion{SessionID: s.ID, Email: s.CustomerEmail}
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		c.Email = s.CustomerDetails.Email
	}
	if ev.Created > 0 {
		c.PaidAt = time.Unix(ev.Created, 0).UTC()
	}

	ship := s.ShippingDetails
	if ship == nil && s.CollectedInformation != nil {
		ship = s.CollectedInformation.ShippingDetails
	}
	if ship != nil {
		c.Shipping = &model.ShippingDetails{
			Name:       ship.Name,
			Line1:      ship.Address.Line1,
			Line2:      ship.Address.Line2,
			City:       ship.Address.City,
			State:      ship.Address.State,
			PostalCode: ship.Address.PostalCode,
			Country:    ship.Address.Country,
		}
	}
	out.Completion = c
	return out, nil
}
