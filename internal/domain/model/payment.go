package model

import "time"

// 決済完了通知に含まれる配送先
type ShippingDetails struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// 2行目があれば改行でつなぐ
func (s ShippingDetails) Address() string {
	if s.Line2 == "" {
		return s.Line1
	}
	return s.Line1 + "\n" + s.Line2
}

const PaymentEventCheckoutCompleted = "checkout.session.completed"

type PaymentCompletion struct {
	SessionID string
	Email     string
	Shipping  *ShippingDetails
	PaidAt    time.Time
}

// 署名検証済みのWebhookイベント
type PaymentEvent struct {
	ID         string
	Type       string
	Completion *PaymentCompletion
}
