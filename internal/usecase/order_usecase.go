package usecase

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shrimpshop/internal/domain/model"
	"shrimpshop/internal/domain/pricing"
	repo "shrimpshop/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const referencePrefix = "SSS-"

type CheckoutValidator interface {
	ValidateCheckout(ctx context.Context, in PlaceOrderInput) error
}

type OrderUsecase struct {
	tx          repo.TransactionManager
	orders      repo.OrderRepository
	orderItems  repo.OrderItemRepository
	store       repo.CartSessionStore
	productRepo repo.ProductRepository
	gateway     PaymentGateway
	notifier    OrderNotifier
	publisher   OrderEventPublisher
	validator   CheckoutValidator
	rates       pricing.Rates
	idGen       IDGenerator
	clock       Clock
	logger      *zap.Logger
}

type OrderUsecaseDeps struct {
	Tx          repo.TransactionManager
	Orders      repo.OrderRepository
	OrderItems  repo.OrderItemRepository
	Store       repo.CartSessionStore
	ProductRepo repo.ProductRepository
	Gateway     PaymentGateway
	Notifier    OrderNotifier
	Publisher   OrderEventPublisher
	Validator   CheckoutValidator
	Rates       pricing.Rates
	IDGen       IDGenerator
	Clock       Clock
	Logger      *zap.Logger
}

func NewOrderUsecase(d OrderUsecaseDeps) *OrderUsecase {
	return &OrderUsecase{
		tx:          d.Tx,
		orders:      d.Orders,
		orderItems:  d.OrderItems,
		store:       d.Store,
		productRepo: d.ProductRepo,
		gateway:     d.Gateway,
		notifier:    d.Notifier,
		publisher:   d.Publisher,
		validator:   d.Validator,
		rates:       d.Rates,
		idGen:       d.IDGen,
		clock:       d.Clock,
		logger:      d.Logger,
	}
}

type PlaceOrderInput struct {
	Email        string
	Phone        string
	AgreeToTerms bool
}

type PlaceOrderOutput struct {
	Reference   string          `json:"reference"`
	CheckoutURL string          `json:"checkout_url"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Shipping    decimal.Decimal `json:"shipping_cost"`
	Total       decimal.Decimal `json:"total_amount"`
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Size      string          `json:"size,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderOutput struct {
	ID              int64             `json:"id"`
	Reference       string            `json:"reference"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone,omitempty"`
	Status          string            `json:"status"`
	Subtotal        decimal.Decimal   `json:"subtotal"`
	ShippingCost    decimal.Decimal   `json:"shipping_cost"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	PaymentDate     *time.Time        `json:"payment_date,omitempty"`
	ShippingName    string            `json:"shipping_name,omitempty"`
	ShippingAddress string            `json:"shipping_address,omitempty"`
	ShippingCity    string            `json:"shipping_city,omitempty"`
	ShippingState   string            `json:"shipping_state,omitempty"`
	ShippingZip     string            `json:"shipping_zip,omitempty"`
	ShippingCountry string            `json:"shipping_country,omitempty"`
	TrackingNumber  string            `json:"tracking_number,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []OrderItemOutput `json:"items"`
}

type ConfirmPaymentResult struct {
	Order            OrderOutput
	AlreadyProcessed bool
}

// PlaceOrder は在庫を確認して決済セッションを作り、pendingの注文を保存する。
// カートはここでは消さない（決済完了の戻りで消す）。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, sessionID string, in PlaceOrderInput) (PlaceOrderOutput, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := u.validator.ValidateCheckout(ctx, in); err != nil {
		return PlaceOrderOutput{}, NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cart, err := u.store.Load(ctx, sessionID)
	if err != nil {
		u.logger.Error("load cart", zap.String("session_id", sessionID), zap.Error(err))
		return PlaceOrderOutput{}, NewHTTPError(http.StatusInternalServerError, "session error")
	}
	products, err := u.productRepo.FindByIDs(ctx, cart.ProductIDs())
	if err != nil {
		return PlaceOrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	lines, dropped := cart.Resolve(products)
	if dropped > 0 {
		if err := u.store.Save(ctx, sessionID, cart); err != nil {
			u.logger.Warn("save pruned cart", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	if len(lines) == 0 {
		return PlaceOrderOutput{}, NewHTTPError(http.StatusBadRequest, "Your cart is empty.")
	}

	//在庫を確定前に再チェック（1行でも足りなければ全体を断る）
	var shortages []string
	for _, l := range lines {
		if l.ExceedsStock() {
			shortages = append(shortages, fmt.Sprintf(
				"Only %d of %s available. Please update your cart quantity.", l.Product.Stock, l.Product.Name))
		}
	}
	if len(shortages) > 0 {
		return PlaceOrderOutput{}, NewHTTPErrorWithDetails(http.StatusConflict, "insufficient stock", shortages)
	}

	q := pricing.Calculate(lines, u.rates)
	reference := newOrderReference(u.idGen.NewID())

	req := CheckoutSessionRequest{
		OrderReference: reference,
		Email:          in.Email,
		Lines:          make([]CheckoutLine, 0, len(lines)+1),
		Metadata: map[string]string{
			"order_reference": reference,
			"item_count":      strconv.FormatInt(q.ItemCount, 10),
		},
	}
	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		name := l.Product.Name
		if l.Entry.Size != "" {
			name += " - " + l.Entry.Size
		}
		req.Lines = append(req.Lines, CheckoutLine{
			Name:       name,
			UnitAmount: pricing.MinorUnits(l.Entry.UnitPrice),
			Quantity:   l.Entry.Quantity,
		})
		items = append(items, model.OrderItem{
			ProductID:   l.Product.ID,
			ProductName: l.Product.Name,
			Size:        l.Entry.Size,
			UnitPrice:   l.Entry.UnitPrice,
			Quantity:    l.Entry.Quantity,
		})
	}
	if q.Shipping.IsPositive() {
		req.Lines = append(req.Lines, CheckoutLine{Name: "Shipping", UnitAmount: pricing.MinorUnits(q.Shipping), Quantity: 1})
	}

	//決済セッションが作れなければ注文は作らない
	session, err := u.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		u.logger.Error("create checkout session",
			zap.String("order_reference", reference),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return PlaceOrderOutput{}, NewHTTPError(http.StatusBadGateway, "Payment service is unavailable. Please try again later.")
	}

	//注文処理はトランザクション
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orderID, err := r.Orders().Create(ctx, model.Order{
			Reference:         reference,
			Email:             in.Email,
			Phone:             in.Phone,
			Status:            model.OrderStatusPending,
			Subtotal:          q.Subtotal,
			ShippingCost:      q.Shipping,
			TotalAmount:       q.GrandTotal,
			CheckoutSessionID: session.ID,
		})
		if err != nil {
			return err
		}
		return r.OrderItems().CreateBulk(ctx, orderID, items)
	})
	if err != nil {
		u.logger.Error("create order",
			zap.String("order_reference", reference),
			zap.String("checkout_session_id", session.ID),
			zap.Error(err),
		)
		return PlaceOrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.logger.Info("order created",
		zap.String("order_reference", reference),
		zap.String("checkout_session_id", session.ID),
		zap.String("total", q.GrandTotal.StringFixed(2)),
	)

	return PlaceOrderOutput{
		Reference:   reference,
		CheckoutURL: session.URL,
		Subtotal:    q.Subtotal,
		Shipping:    q.Shipping,
		Total:       q.GrandTotal,
	}, nil
}

// 署名検証済みの完了通知だけを処理する。対象外のイベントは何もしない
func (u *OrderUsecase) HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := u.gateway.ParseWebhook(payload, signature)
	if err != nil {
		u.logger.Warn("webhook rejected", zap.Error(err))
		return NewHTTPError(http.StatusBadRequest, "invalid webhook")
	}
	if ev.Type != model.PaymentEventCheckoutCompleted || ev.Completion == nil {
		u.logger.Debug("webhook ignored", zap.String("event_id", ev.ID), zap.String("type", ev.Type))
		return nil
	}
	_, err = u.ConfirmPayment(ctx, *ev.Completion)
	return err
}

// ConfirmPayment は pending → paid。再送されても在庫減算と通知は1回だけ。
func (u *OrderUsecase) ConfirmPayment(ctx context.Context, c model.PaymentCompletion) (ConfirmPaymentResult, error) {
	if strings.TrimSpace(c.SessionID) == "" {
		return ConfirmPaymentResult{}, NewHTTPError(http.StatusBadRequest, "missing session id")
	}
	paidAt := c.PaidAt
	if paidAt.IsZero() {
		paidAt = u.clock.Now()
	}

	var (
		order   model.Order
		items   []model.OrderItem
		already bool
	)

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByCheckoutSessionIDForUpdate(ctx, c.SessionID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if o.Status != model.OrderStatusPending {
			already = true
			order = o
			return nil
		}

		updated, err := r.Orders().MarkPaid(ctx, o.ID, paidAt, c.Shipping)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !updated {
			already = true
			order = o
			return nil
		}

		items, err = r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// 在庫が足りるときだけ減らす。足りなければ警告だけ残す
		for _, it := range items {
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !ok {
				u.logger.Warn("insufficient stock at payment",
					zap.String("order_reference", o.Reference),
					zap.Int64("product_id", it.ProductID),
					zap.Int64("quantity", it.Quantity),
				)
				continue
			}
			if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
				ProductID: it.ProductID,
				Delta:     -it.Quantity,
				Reason:    "order paid " + o.Reference,
			}); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		order, err = r.Orders().FindByID(ctx, o.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		if he, ok := AsHTTPError(err); ok && he.Status == http.StatusNotFound {
			u.logger.Error("webhook for unknown order", zap.String("checkout_session_id", c.SessionID))
		}
		return ConfirmPaymentResult{}, err
	}

	if already && order.Status == model.OrderStatusCancelled {
		// 入金されたのにキャンセル済み。返金などの突き合わせが要る
		u.logger.Error("payment received for cancelled order",
			zap.String("order_reference", order.Reference),
			zap.String("checkout_session_id", c.SessionID),
		)
		return ConfirmPaymentResult{Order: toOrderOutput(order, nil), AlreadyProcessed: true}, nil
	}
	if already {
		u.logger.Info("payment already processed",
			zap.String("order_reference", order.Reference),
			zap.String("status", string(order.Status)),
		)
		return ConfirmPaymentResult{Order: toOrderOutput(order, nil), AlreadyProcessed: true}, nil
	}

	u.logger.Info("order paid", zap.String("order_reference", order.Reference))

	// コミット後に通知（失敗しても注文はpaidのまま）
	if !u.notifier.SendOrderConfirmation(ctx, order, items) {
		u.logger.Error("customer confirmation not sent", zap.String("order_reference", order.Reference))
	}
	if !u.notifier.SendOrderNotification(ctx, order, items) {
		u.logger.Error("admin notification not sent", zap.String("order_reference", order.Reference))
	}
	if err := u.publisher.PublishOrderPaid(ctx, order, items); err != nil {
		u.logger.Error("publish order.paid", zap.String("order_reference", order.Reference), zap.Error(err))
	}

	return ConfirmPaymentResult{Order: toOrderOutput(order, items)}, nil
}

// 注文番号を知っている人だけが見られる
func (u *OrderUsecase) GetOrderByReference(ctx context.Context, reference string) (OrderOutput, error) {
	reference = strings.ToUpper(strings.TrimSpace(reference))
	if !strings.HasPrefix(reference, referencePrefix) || len(reference) > 32 {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	o, err := u.orders.FindByReference(ctx, reference)
	if err == repo.ErrNotFound {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	items, err := u.orderItems.ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	out := toOrderOutput(o, items)
	// 管理用メモは見せない
	out.Notes = ""
	return out, nil
}

func newOrderReference(id string) string {
	hex := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(hex) > 16 {
		hex = hex[:16]
	}
	return referencePrefix + hex
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductName,
			Size:      it.Size,
			Price:     it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal(),
		})
	}

	return OrderOutput{
		ID:              o.ID,
		Reference:       o.Reference,
		Email:           o.Email,
		Phone:           o.Phone,
		Status:          string(o.Status),
		Subtotal:        o.Subtotal,
		ShippingCost:    o.ShippingCost,
		TotalAmount:     o.TotalAmount,
		PaymentDate:     o.PaymentDate,
		ShippingName:    o.ShippingName,
		ShippingAddress: o.ShippingAddress,
		ShippingCity:    o.ShippingCity,
		ShippingState:   o.ShippingState,
		ShippingZip:     o.ShippingZip,
		ShippingCountry: o.ShippingCountry,
		TrackingNumber:  o.TrackingNumber,
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
}
