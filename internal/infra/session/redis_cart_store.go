package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shrimpshop/internal/domain/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "cart:"

// カートJSONをセッションIDごとに保存する。
// 読むたびに期限を延ばす（最終アクセスから一定時間で消える）。
type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCartStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCartStore {
	return &RedisCartStore{client: client, ttl: ttl, logger: logger}
}

func cartKey(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *RedisCartStore) Load(ctx context.Context, sessionID string) (*model.Cart, error) {
	blob, err := s.client.GetEx(ctx, cartKey(sessionID), s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.NewCart(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	cart, err := model.DecodeCart(blob)
	if err != nil {
		// 壊れたblobは捨てて空から始める
		s.logger.Warn("discarding unreadable cart", zap.String("session_id", sessionID), zap.Error(err))
		return model.NewCart(), nil
	}
	return cart, nil
}

// 空になったカートはキーごと消す
func (s *RedisCartStore) Save(ctx context.Context, sessionID string, cart *model.Cart) error {
	if cart == nil || cart.IsEmpty() {
		return s.Delete(ctx, sessionID)
	}
	blob, err := cart.Encode()
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, cartKey(sessionID), blob, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

func (s *RedisCartStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}
