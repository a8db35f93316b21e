package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"shrimpshop/internal/domain/model"
	"shrimpshop/internal/infra/events"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeEvent(t *testing.T, val []byte) events.OrderEvent {
	t.Helper()
	var ev events.OrderEvent
	require.NoError(t, json.Unmarshal(val, &ev))
	return ev
}

func TestKafkaPublisher_OrderPaid(t *testing.T) {
	sp := mocks.NewSyncProducer(t, events.NewProducerConfig())
	defer sp.Close()

	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "SSS-AAAA" {
			return errors.New("unexpected key " + string(key))
		}
		val, _ := msg.Value.Encode()
		ev := decodeEvent(t, val)
		assert.Equal(t, events.EventOrderPaid, ev.Type)
		assert.Equal(t, "25.00", ev.TotalAmount)
		assert.Equal(t, "paid", ev.Status)
		require.Len(t, ev.Items, 1)
		assert.Equal(t, int64(2), ev.Items[0].Quantity)
		return nil
	})

	p := events.NewKafkaPublisherWithProducer(sp, "orders.events", zap.NewNop())
	err := p.PublishOrderPaid(context.Background(),
		model.Order{ID: 7, Reference: "SSS-AAAA", Status: model.OrderStatusPaid, TotalAmount: decimal.RequireFromString("25")},
		[]model.OrderItem{{ProductID: 1, ProductName: "Blue Dream", Quantity: 2}},
	)
	require.NoError(t, err)
}

func TestKafkaPublisher_StatusChanged(t *testing.T) {
	sp := mocks.NewSyncProducer(t, events.NewProducerConfig())
	defer sp.Close()

	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		ev := decodeEvent(t, val)
		assert.Equal(t, events.EventOrderStatusChanged, ev.Type)
		assert.Equal(t, "paid", ev.FromStatus)
		assert.Equal(t, "shipped", ev.Status)
		assert.Equal(t, int64(3), ev.ActorUserID)
		return nil
	})

	p := events.NewKafkaPublisherWithProducer(sp, "orders.events", zap.NewNop())
	err := p.PublishOrderStatusChanged(context.Background(),
		model.Order{ID: 7, Reference: "SSS-AAAA", Status: model.OrderStatusShipped}, model.OrderStatusPaid, 3)
	require.NoError(t, err)
}

func TestKafkaPublisher_SendError(t *testing.T) {
	sp := mocks.NewSyncProducer(t, events.NewProducerConfig())
	defer sp.Close()
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := events.NewKafkaPublisherWithProducer(sp, "orders.events", zap.NewNop())
	err := p.PublishOrderStatusChanged(context.Background(), model.Order{Reference: "SSS-B"}, model.OrderStatusPaid, 1)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}
