package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"shrimpshop/internal/domain/model"
	repo "shrimpshop/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// 在庫の一括更新で受け付ける件数
const maxBulkInventoryItems = 200

type ProductUsecase struct {
	productRepo  repo.ProductRepository
	categoryRepo repo.CategoryRepository
	tx           repo.TransactionManager
	auditRepo    repo.AuditLogRepository
	clock        Clock
	logger       *zap.Logger
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	categoryRepo repo.CategoryRepository,
	tx repo.TransactionManager,
	auditRepo repo.AuditLogRepository,
	clock Clock,
	logger *zap.Logger,
) *ProductUsecase {
	return &ProductUsecase{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
		tx:           tx,
		auditRepo:    auditRepo,
		clock:        clock,
		logger:       logger,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page         int
	Limit        int
	Q            string
	CategorySlug string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	InStockOnly  bool
	Sort         string
}

type ProductOutput struct {
	model.Product
	StockStatus     model.StockStatus `json:"stock_status"`
	RequiresSpecial bool              `json:"requires_special_handling"`
}

type ProductListOutput struct {
	Items []ProductOutput `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func toProductOutput(p model.Product) ProductOutput {
	return ProductOutput{Product: p, StockStatus: p.StockStatus(), RequiresSpecial: p.RequiresSpecialHandling()}
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "q too long")
	}
	if in.MinPrice != nil && in.MinPrice.IsNegative() {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "min_price must be >= 0")
	}
	if in.MaxPrice != nil && in.MaxPrice.IsNegative() {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "max_price must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "min_price must be <= max_price")
	}
	switch in.Sort {
	case "", "new", "name", "price_asc", "price_desc":
	default:
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sort")
	}

	items, total, err := u.productRepo.ListPublic(ctx, repo.ProductListQuery{
		Page:         in.Page,
		Limit:        in.Limit,
		Q:            strings.TrimSpace(in.Q),
		CategorySlug: strings.TrimSpace(in.CategorySlug),
		MinPrice:     in.MinPrice,
		MaxPrice:     in.MaxPrice,
		InStockOnly:  in.InStockOnly,
		Sort:         in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	outs := make([]ProductOutput, 0, len(items))
	for _, p := range items {
		outs = append(outs, toProductOutput(p))
	}
	return ProductListOutput{
		Items: outs,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (ProductOutput, error) {
	if productID <= 0 {
		return ProductOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return ProductOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return ProductOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return toProductOutput(p), nil
}

func (u *ProductUsecase) ListCategories(ctx context.Context) ([]model.Category, error) {
	cats, err := u.categoryRepo.List(ctx)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return cats, nil
}

type InventoryUpdateInput struct {
	ProductID int64  `json:"product_id"`
	Stock     int64  `json:"stock"`
	Reason    string `json:"reason"`
}

type InventoryUpdateOutput struct {
	ProductID int64 `json:"product_id"`
	Before    int64 `json:"before"`
	After     int64 `json:"after"`
	Available bool  `json:"available"`
}

// 在庫を現在値で上書きし、調整履歴と監査ログを同じTxで残す
func (u *ProductUsecase) AdminUpdateInventory(ctx context.Context, adminUserID int64, in InventoryUpdateInput) (InventoryUpdateOutput, error) {
	outs, err := u.AdminBulkUpdateInventory(ctx, adminUserID, []InventoryUpdateInput{in})
	if err != nil {
		return InventoryUpdateOutput{}, err
	}
	return outs[0], nil
}

// 1件でも失敗したら全件ロールバック
func (u *ProductUsecase) AdminBulkUpdateInventory(ctx context.Context, adminUserID int64, ins []InventoryUpdateInput) ([]InventoryUpdateOutput, error) {
	if adminUserID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(ins) == 0 || len(ins) > maxBulkInventoryItems {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid items")
	}
	for _, in := range ins {
		if in.ProductID <= 0 {
			return nil, NewHTTPError(http.StatusBadRequest, "invalid product id")
		}
		if in.Stock < 0 {
			return nil, NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
		}
		if len(in.Reason) > 255 {
			return nil, NewHTTPError(http.StatusBadRequest, "reason too long")
		}
	}

	now := u.clock.Now()
	outs := make([]InventoryUpdateOutput, 0, len(ins))

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		for _, in := range ins {
			before, err := r.Inventory().SetStock(ctx, in.ProductID, in.Stock)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, fmt.Sprintf("product %d not found", in.ProductID))
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			reason := strings.TrimSpace(in.Reason)
			if reason == "" {
				reason = "manual stock update"
			}
			actor := adminUserID
			if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
				ProductID:   in.ProductID,
				ActorUserID: &actor,
				Delta:       in.Stock - before,
				Reason:      reason,
				CreatedAt:   now,
			}); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			//監査ログを作成（在庫更新）
			beforeJSON, _ := json.Marshal(map[string]int64{"stock": before})
			afterJSON, _ := json.Marshal(map[string]int64{"stock": in.Stock})
			if err := r.AuditLogs().Create(ctx, model.AuditLog{
				ActorUserID:  adminUserID,
				Action:       model.AuditActionUpdateStock,
				ResourceType: model.AuditResourceProduct,
				ResourceID:   in.ProductID,
				Before:       datatypes.JSON(beforeJSON),
				After:        datatypes.JSON(afterJSON),
				CreatedAt:    now,
			}); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			outs = append(outs, InventoryUpdateOutput{
				ProductID: in.ProductID,
				Before:    before,
				After:     in.Stock,
				Available: in.Stock > 0,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("stock updated", zap.Int64("actor_user_id", adminUserID), zap.Int("products", len(outs)))
	return outs, nil
}

func (u *ProductUsecase) AdminListAdjustments(ctx context.Context, productID int64, limit int) ([]model.InventoryAdjustment, error) {
	if productID <= 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	var adjs []model.InventoryAdjustment
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		adjs, err = r.Inventory().ListAdjustments(ctx, productID, limit)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adjs, nil
}

func (u *ProductUsecase) AdminListAuditLogs(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	if f.Limit < 0 || f.Limit > 200 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if f.Offset < 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid offset")
	}
	logs, err := u.auditRepo.List(ctx, f)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return logs, nil
}
