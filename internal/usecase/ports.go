package usecase

import (
	"context"
	"errors"
	"time"

	"shrimpshop/internal/domain/model"
)

// 署名が合わない・形式が壊れているWebhook
var ErrInvalidWebhook = errors.New("invalid webhook")

type IDGenerator interface {
	NewID() string
}

type Clock interface {
	Now() time.Time
}

// 決済代行に渡す1行（金額は最小通貨単位）
type CheckoutLine struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

type CheckoutSessionRequest struct {
	OrderReference string
	Email          string
	Lines          []CheckoutLine
	Metadata       map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// 署名を検証してから中身を読む。失敗はErrInvalidWebhookをラップして返す
	ParseWebhook(payload []byte, signature string) (model.PaymentEvent, error)
}

// 送信結果はboolで返し、失敗しても注文処理は止めない
type OrderNotifier interface {
	SendOrderConfirmation(ctx context.Context, order model.Order, items []model.OrderItem) bool
	SendOrderNotification(ctx context.Context, order model.Order, items []model.OrderItem) bool
}

type OrderEventPublisher interface {
	PublishOrderPaid(ctx context.Context, order model.Order, items []model.OrderItem) error
	PublishOrderStatusChanged(ctx context.Context, order model.Order, from model.OrderStatus, actorUserID int64) error
}
