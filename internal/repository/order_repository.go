package repository

import (
	"context"
	"time"

	"shrimpshop/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	// メール・配送先氏名・注文番号の部分一致
	Q    string
	From *time.Time
	To   *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	// 管理画面のステータス変更用。行ロックを取る（Tx内で使う）
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	FindByReference(ctx context.Context, reference string) (model.Order, error)
	// Webhook用。行ロックを取る（Tx内で使う）
	FindByCheckoutSessionIDForUpdate(ctx context.Context, sessionID string) (model.Order, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	// pendingのときだけpaidにする。更新できなければfalse
	MarkPaid(ctx context.Context, orderID int64, paidAt time.Time, shipping *model.ShippingDetails) (bool, error)
	// statusがfromのときだけ更新する。別の更新が先に入っていればfalse
	UpdateFulfillment(ctx context.Context, orderID int64, from, to model.OrderStatus, trackingNumber, notes string) (bool, error)

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
