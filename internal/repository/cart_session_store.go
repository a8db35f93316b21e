package repository

import (
	"context"

	"shrimpshop/internal/domain/model"
)

// セッションIDごとのカート保存先
type CartSessionStore interface {
	// 無い・期限切れなら空のカート
	Load(ctx context.Context, sessionID string) (*model.Cart, error)
	Save(ctx context.Context, sessionID string, cart *model.Cart) error
	Delete(ctx context.Context, sessionID string) error
}
