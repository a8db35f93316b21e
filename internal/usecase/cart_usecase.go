package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"shrimpshop/internal/domain/model"
	"shrimpshop/internal/domain/pricing"
	repo "shrimpshop/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// 1回の追加で受け付ける上限
	MaxAddQuantity = 999
	// 数量変更で受け付ける上限
	MaxUpdateQuantity = 9999
)

// CartUsecase はセッションカートの業務ロジックです。
type CartUsecase struct {
	store       repo.CartSessionStore
	productRepo repo.ProductRepository
	rates       pricing.Rates
	logger      *zap.Logger
}

func NewCartUsecase(
	store repo.CartSessionStore,
	productRepo repo.ProductRepository,
	rates pricing.Rates,
	logger *zap.Logger,
) *CartUsecase {
	return &CartUsecase{
		store:       store,
		productRepo: productRepo,
		rates:       rates,
		logger:      logger,
	}
}

// price は追加時点の価格
type CartItemResponse struct {
	Key             string          `json:"key"`
	ProductID       int64           `json:"product_id"`
	Name            string          `json:"name"`
	Size            string          `json:"size,omitempty"`
	Price           decimal.Decimal `json:"price"`
	Quantity        int64           `json:"quantity"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Stock           int64           `json:"stock"`
	SpecialHandling bool            `json:"special_handling"`
}

type StockWarning struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

type CartResponse struct {
	Items         []CartItemResponse `json:"items"`
	ItemCount     int64              `json:"item_count"`
	Total         decimal.Decimal    `json:"total"`
	ShippingCost  decimal.Decimal    `json:"shipping_cost"`
	GrandTotal    decimal.Decimal    `json:"grand_total"`
	StockWarnings []StockWarning     `json:"stock_warnings"`
	Messages      []string           `json:"messages,omitempty"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
	Size      string
	// trueなら数量を置き換える
	Override bool
}

type UpdateCartItemInput struct {
	Quantity int64
	Size     string
}

// GetCart はカート取得（無ければ空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, sessionID string) (CartResponse, error) {
	_, lines, err := u.loadLines(ctx, sessionID)
	if err != nil {
		return CartResponse{}, err
	}
	return u.buildCartResponse(lines, nil), nil
}

func (u *CartUsecase) AddToCart(ctx context.Context, sessionID string, in AddCartInput) (CartResponse, error) {
	if in.ProductID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 1 || in.Quantity > MaxAddQuantity {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "Please enter a valid quantity.")
	}

	p, err := u.productRepo.FindByID(ctx, in.ProductID)
	if err == repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	cart, err := u.store.Load(ctx, sessionID)
	if err != nil {
		u.logger.Error("load cart", zap.String("session_id", sessionID), zap.Error(err))
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "session error")
	}

	res, err := cart.Add(p, in.Quantity, in.Size, in.Override)
	if errors.Is(err, model.ErrOutOfStock) {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Sorry, %s is out of stock.", p.Name))
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "Please enter a valid quantity.")
	}

	var messages []string
	if res.Clamped {
		u.logger.Warn("cart quantity clamped to stock",
			zap.String("session_id", sessionID),
			zap.Int64("product_id", p.ID),
			zap.Int64("requested", in.Quantity),
			zap.Int64("stock", p.Stock),
		)
		messages = append(messages, res.Warning)
	} else {
		messages = append(messages, fmt.Sprintf("Added %d x %s to your cart.", in.Quantity, p.Name))
	}

	if err := u.save(ctx, sessionID, cart); err != nil {
		return CartResponse{}, err
	}

	lines, err := u.resolve(ctx, sessionID, cart)
	if err != nil {
		return CartResponse{}, err
	}
	return u.buildCartResponse(lines, messages), nil
}

// 数量変更。0なら削除、在庫を超える分は在庫数に丸める。
func (u *CartUsecase) UpdateCartItem(ctx context.Context, sessionID string, productID int64, in UpdateCartItemInput) (CartResponse, error) {
	if productID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "Quantity cannot be negative.")
	}
	if in.Quantity > MaxUpdateQuantity {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Quantity cannot exceed %d.", MaxUpdateQuantity))
	}

	cart, err := u.store.Load(ctx, sessionID)
	if err != nil {
		u.logger.Error("load cart", zap.String("session_id", sessionID), zap.Error(err))
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "session error")
	}

	qty := in.Quantity
	var messages []string
	if qty > 0 {
		p, err := u.productRepo.FindByID(ctx, productID)
		if err == repo.ErrNotFound {
			// 商品が消えていたら明細も消す
			cart.Remove(productID, in.Size)
			if err := u.save(ctx, sessionID, cart); err != nil {
				return CartResponse{}, err
			}
			return CartResponse{}, NewHTTPError(http.StatusNotFound, "product not found")
		}
		if err != nil {
			return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if qty > p.Stock {
			qty = p.Stock
			messages = append(messages, fmt.Sprintf("Quantity adjusted to %d (maximum available).", p.Stock))
			u.logger.Warn("cart quantity clamped to stock",
				zap.String("session_id", sessionID),
				zap.Int64("product_id", p.ID),
				zap.Int64("requested", in.Quantity),
				zap.Int64("stock", p.Stock),
			)
		}
	}

	found := cart.Update(productID, qty, in.Size)
	if !found && in.Quantity > 0 {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "Item not found in cart.")
	}
	if found {
		if err := u.save(ctx, sessionID, cart); err != nil {
			return CartResponse{}, err
		}
	}

	lines, err := u.resolve(ctx, sessionID, cart)
	if err != nil {
		return CartResponse{}, err
	}
	return u.buildCartResponse(lines, messages), nil
}

func (u *CartUsecase) RemoveCartItem(ctx context.Context, sessionID string, productID int64, size string) (CartResponse, error) {
	cart, err := u.store.Load(ctx, sessionID)
	if err != nil {
		u.logger.Error("load cart", zap.String("session_id", sessionID), zap.Error(err))
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "session error")
	}
	if !cart.Remove(productID, size) {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "Item could not be removed from cart.")
	}
	if err := u.save(ctx, sessionID, cart); err != nil {
		return CartResponse{}, err
	}

	lines, err := u.resolve(ctx, sessionID, cart)
	if err != nil {
		return CartResponse{}, err
	}
	return u.buildCartResponse(lines, []string{"Item removed from cart."}), nil
}

func (u *CartUsecase) ClearCart(ctx context.Context, sessionID string) error {
	if err := u.store.Delete(ctx, sessionID); err != nil {
		u.logger.Error("clear cart", zap.String("session_id", sessionID), zap.Error(err))
		return NewHTTPError(http.StatusInternalServerError, "session error")
	}
	return nil
}

func (u *CartUsecase) save(ctx context.Context, sessionID string, cart *model.Cart) error {
	if err := u.store.Save(ctx, sessionID, cart); err != nil {
		u.logger.Error("save cart", zap.String("session_id", sessionID), zap.Error(err))
		return NewHTTPError(http.StatusInternalServerError, "session error")
	}
	return nil
}

func (u *CartUsecase) loadLines(ctx context.Context, sessionID string) (*model.Cart, []model.CartLine, error) {
	cart, err := u.store.Load(ctx, sessionID)
	if err != nil {
		u.logger.Error("load cart", zap.String("session_id", sessionID), zap.Error(err))
		return nil, nil, NewHTTPError(http.StatusInternalServerError, "session error")
	}
	lines, err := u.resolve(ctx, sessionID, cart)
	if err != nil {
		return nil, nil, err
	}
	return cart, lines, nil
}

// 商品が消えた明細は黙って落とし、セッションにも反映する
func (u *CartUsecase) resolve(ctx context.Context, sessionID string, cart *model.Cart) ([]model.CartLine, error) {
	products, err := u.productRepo.FindByIDs(ctx, cart.ProductIDs())
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	lines, dropped := cart.Resolve(products)
	if dropped > 0 {
		u.logger.Info("dropped stale cart entries", zap.String("session_id", sessionID), zap.Int("count", dropped))
		if err := u.save(ctx, sessionID, cart); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func (u *CartUsecase) buildCartResponse(lines []model.CartLine, messages []string) CartResponse {
	q := pricing.Calculate(lines, u.rates)

	items := make([]CartItemResponse, 0, len(lines))
	warnings := make([]StockWarning, 0)
	for _, l := range lines {
		items = append(items, CartItemResponse{
			Key:             l.Key,
			ProductID:       l.Entry.ProductID,
			Name:            l.Product.Name,
			Size:            l.Entry.Size,
			Price:           l.Entry.UnitPrice,
			Quantity:        l.Entry.Quantity,
			Subtotal:        l.Subtotal(),
			Stock:           l.Product.Stock,
			SpecialHandling: l.Product.RequiresSpecialHandling(),
		})
		if l.ExceedsStock() {
			warnings = append(warnings, StockWarning{
				ProductID: l.Entry.ProductID,
				Name:      l.Product.Name,
				Requested: l.Entry.Quantity,
				Available: l.Product.Stock,
			})
		}
	}

	return CartResponse{
		Items:         items,
		ItemCount:     q.ItemCount,
		Total:         q.Subtotal,
		ShippingCost:  q.Shipping,
		GrandTotal:    q.GrandTotal,
		StockWarnings: warnings,
		Messages:      messages,
	}
}
