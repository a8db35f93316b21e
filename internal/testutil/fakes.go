package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shrimpshop/internal/domain/model"
	"shrimpshop/internal/usecase"
)

// Redisの代わり。エンコードした状態で持つ
type CartStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	Err   error
}

func NewCartStore() *CartStore {
	return &CartStore{blobs: map[string][]byte{}}
}

func (s *CartStore) Load(_ context.Context, sid string) (*model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return model.DecodeCart(s.blobs[sid])
}

func (s *CartStore) Save(_ context.Context, sid string, c *model.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if c.IsEmpty() {
		delete(s.blobs, sid)
		return nil
	}
	b, err := c.Encode()
	if err != nil {
		return err
	}
	s.blobs[sid] = b
	return nil
}

func (s *CartStore) Delete(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.blobs, sid)
	return nil
}

func (s *CartStore) Has(sid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[sid]
	return ok
}

// 決済代行のフェイク。Eventsに署名→イベントを登録しておく
type Gateway struct {
	mu       sync.Mutex
	Requests []usecase.CheckoutSessionRequest
	Err      error
	Events   map[string]model.PaymentEvent
	n        int
}

func NewGateway() *Gateway {
	return &Gateway{Events: map[string]model.PaymentEvent{}}
}

func (g *Gateway) CreateCheckoutSession(_ context.Context, req usecase.CheckoutSessionRequest) (usecase.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if g.Err != nil {
		return usecase.CheckoutSession{}, g.Err
	}
	g.n++
	id := fmt.Sprintf("cs_test_%d", g.n)
	return usecase.CheckoutSession{ID: id, URL: "https://pay.test/" + id}, nil
}

func (g *Gateway) ParseWebhook(_ []byte, signature string) (model.PaymentEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ev, ok := g.Events[signature]
	if !ok {
		return model.PaymentEvent{}, fmt.Errorf("%w: bad signature", usecase.ErrInvalidWebhook)
	}
	return ev, nil
}

// 支払い完了イベントを署名sigで受け付けるようにする
func (g *Gateway) Complete(sig, sessionID, email string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Events[sig] = model.PaymentEvent{
		ID:   "evt_" + sig,
		Type: model.PaymentEventCheckoutCompleted,
		Completion: &model.PaymentCompletion{
			SessionID: sessionID,
			Email:     email,
			Shipping: &model.ShippingDetails{
				Name: "Ann Diver", Line1: "1 High St", City: "Taunton", PostalCode: "TA1 1AA", Country: "GB",
			},
		},
	}
}

type Notifier struct {
	mu            sync.Mutex
	Confirmations []string
	Notifications []string
	Fail          bool
}

func (n *Notifier) SendOrderConfirmation(_ context.Context, o model.Order, _ []model.OrderItem) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Confirmations = append(n.Confirmations, o.Reference)
	return !n.Fail
}

func (n *Notifier) SendOrderNotification(_ context.Context, o model.Order, _ []model.OrderItem) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notifications = append(n.Notifications, o.Reference)
	return !n.Fail
}

type PublishedEvent struct {
	Type      string
	Reference string
	From      model.OrderStatus
	To        model.OrderStatus
}

type Publisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
	Err    error
}

func (p *Publisher) PublishOrderPaid(_ context.Context, o model.Order, _ []model.OrderItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, PublishedEvent{Type: "order.paid", Reference: o.Reference, To: o.Status})
	return p.Err
}

func (p *Publisher) PublishOrderStatusChanged(_ context.Context, o model.Order, from model.OrderStatus, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, PublishedEvent{Type: "order.status_changed", Reference: o.Reference, From: from, To: o.Status})
	return p.Err
}

type Clock struct{ T time.Time }

func (c Clock) Now() time.Time { return c.T }

// 連番のUUID風ID
type SeqID struct {
	mu sync.Mutex
	n  int
}

func (g *SeqID) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", g.n, g.n)
}
