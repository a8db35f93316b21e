package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shrimpshop/internal/domain/model"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	EventOrderPaid          = "order.paid"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderEvent struct {
	Type        string           `json:"type"`
	Reference   string           `json:"reference"`
	OrderID     int64            `json:"order_id"`
	Status      string           `json:"status"`
	FromStatus  string           `json:"from_status,omitempty"`
	Email       string           `json:"email,omitempty"`
	TotalAmount string           `json:"total_amount,omitempty"`
	Items       []OrderEventItem `json:"items,omitempty"`
	ActorUserID int64            `json:"actor_user_id,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

type OrderEventItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
}

// 注文イベントをKafkaへ送る。キーは注文番号
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
	now      func() time.Time
}

func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	return cfg
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) (*KafkaPublisher, error) {
	p, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(p, topic, log), nil
}

func NewKafkaPublisherWithProducer(p sarama.SyncProducer, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic, log: log, now: time.Now}
}

func (p *KafkaPublisher) PublishOrderPaid(ctx context.Context, order model.Order, items []model.OrderItem) error {
	ev := OrderEvent{
		Type:        EventOrderPaid,
		Reference:   order.Reference,
		OrderID:     order.ID,
		Status:      string(order.Status),
		Email:       order.Email,
		TotalAmount: order.TotalAmount.StringFixed(2),
		OccurredAt:  p.now().UTC(),
	}
	for _, it := range items {
		ev.Items = append(ev.Items, OrderEventItem{ProductID: it.ProductID, Name: it.ProductName, Quantity: it.Quantity})
	}
	return p.publish(ctx, ev)
}

func (p *KafkaPublisher) PublishOrderStatusChanged(ctx context.Context, order model.Order, from model.OrderStatus, actorUserID int64) error {
	return p.publish(ctx, OrderEvent{
		Type:        EventOrderStatusChanged,
		Reference:   order.Reference,
		OrderID:     order.ID,
		Status:      string(order.Status),
		FromStatus:  string(from),
		ActorUserID: actorUserID,
		OccurredAt:  p.now().UTC(),
	})
}

func (p *KafkaPublisher) publish(ctx context.Context, ev OrderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Reference),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.log.Debug("event published",
		zap.String("type", ev.Type),
		zap.String("reference", ev.Reference),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// KAFKA_BROKERS未設定時に使う
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderPaid(context.Context, model.Order, []model.OrderItem) error {
	return nil
}

func (NoopPublisher) PublishOrderStatusChanged(context.Context, model.Order, model.OrderStatus, int64) error {
	return nil
}
