package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// 管理者が行える遷移。paidへはWebhookからのみ
var fulfillmentTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s OrderStatus) RequiresTrackingNumber() bool {
	return s == OrderStatusShipped || s == OrderStatusDelivered
}

// 在庫を引き当て済みの状態
func (s OrderStatus) HoldsStock() bool {
	return s == OrderStatusPaid || s == OrderStatusProcessing
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range fulfillmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// 管理者によるステータス変更の検証。
// 同じステータスへの更新は追跡番号やメモの更新として許可する。
func ValidateFulfillmentTransition(from, to OrderStatus, trackingNumber string) error {
	if to.RequiresTrackingNumber() && strings.TrimSpace(trackingNumber) == "" {
		return ErrTrackingNumberRequired
	}
	if from == to {
		return nil
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}
	return nil
}

type Order struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Reference string      `gorm:"type:varchar(32);not null;uniqueIndex" json:"reference"`
	Email     string      `gorm:"type:varchar(255);not null;index" json:"email"`
	Phone     string      `gorm:"type:varchar(20)" json:"phone,omitempty"`
	Status    OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	Subtotal     decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"subtotal"`
	ShippingCost decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"shipping_cost"`
	TotalAmount  decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total_amount"`

	// 決済セッションとの対応付け
	CheckoutSessionID string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`
	PaymentDate       *time.Time `json:"payment_date,omitempty"`

	ShippingName    string `gorm:"type:varchar(200)" json:"shipping_name,omitempty"`
	ShippingAddress string `gorm:"type:text" json:"shipping_address,omitempty"`
	ShippingCity    string `gorm:"type:varchar(100)" json:"shipping_city,omitempty"`
	ShippingState   string `gorm:"type:varchar(100)" json:"shipping_state,omitempty"`
	ShippingZip     string `gorm:"type:varchar(20)" json:"shipping_zip,omitempty"`
	ShippingCountry string `gorm:"type:varchar(100)" json:"shipping_country,omitempty"`

	TrackingNumber string    `gorm:"type:varchar(100)" json:"tracking_number,omitempty"`
	Notes          string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (o Order) ShippingAddressFull() string {
	parts := make([]string, 0, 6)
	for _, p := range []string{o.ShippingName, o.ShippingAddress, o.ShippingCity, o.ShippingState, o.ShippingZip, o.ShippingCountry} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
