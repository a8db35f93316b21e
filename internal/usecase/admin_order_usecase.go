package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"shrimpshop/internal/domain/model"
	repo "shrimpshop/internal/repository"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type AdminOrderUsecase struct {
	tx        repo.TransactionManager
	publisher OrderEventPublisher
	clock     Clock
	logger    *zap.Logger
}

func NewAdminOrderUsecase(tx repo.TransactionManager, publisher OrderEventPublisher, clock Clock, logger *zap.Logger) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, publisher: publisher, clock: clock, logger: logger}
}

type AdminUpdateOrderStatusInput struct {
	Status         string
	TrackingNumber string
	// nilなら既存のまま。空文字で消す
	Notes *string
}

type AdminOrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// 監査ログに残す注文のスナップショット
type orderAuditSnapshot struct {
	Status         model.OrderStatus `json:"status"`
	TrackingNumber string            `json:"tracking_number"`
	Notes          string            `json:"notes"`
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (AdminOrderListOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if f.Status != "" {
		if _, err := model.ParseOrderStatus(f.Status); err != nil {
			return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	}
	if len(f.Q) > 100 {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid q")
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid date range")
	}

	out := AdminOrderListOutput{Page: f.Page, Limit: f.Limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out.Total = total
		out.Items = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			out.Items = append(out.Items, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return AdminOrderListOutput{}, err
	}
	return out, nil
}

func (u *AdminOrderUsecase) Get(ctx context.Context, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// ステータス更新（paid/processingからのキャンセルなら在庫戻し）
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	newStatus, err := model.ParseOrderStatus(in.Status)
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	tracking := strings.TrimSpace(in.TrackingNumber)
	if len(tracking) > 100 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid tracking_number")
	}

	var (
		out          OrderOutput
		before       model.Order
		statusChange bool
	)

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// Webhookの入金確定と同時に来ても、どちらかが先に終わるまで待つ
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		before = o

		// 追跡番号は入力が無ければ既存のものを使う
		if tracking == "" {
			tracking = o.TrackingNumber
		}
		notes := o.Notes
		if in.Notes != nil {
			notes = strings.TrimSpace(*in.Notes)
		}

		if err := model.ValidateFulfillmentTransition(o.Status, newStatus, tracking); err != nil {
			switch {
			case errors.Is(err, model.ErrTrackingNumberRequired):
				return NewHTTPError(http.StatusBadRequest, "tracking number is required for shipped or delivered orders")
			default:
				return NewHTTPError(http.StatusBadRequest, "cannot change status from "+string(o.Status)+" to "+string(newStatus))
			}
		}
		statusChange = o.Status != newStatus

		// 読んだ時点のステータスのままなら更新。在庫戻しより先に行う
		ok, err := r.Orders().UpdateFulfillment(ctx, orderID, o.Status, newStatus, tracking, notes)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !ok {
			return NewHTTPError(http.StatusConflict, "order was updated concurrently, reload and retry")
		}

		// 引き当て済みの注文をキャンセルしたときだけ在庫戻し
		if newStatus == model.OrderStatusCancelled && o.Status.HoldsStock() {
			items, err := r.OrderItems().ListByOrderID(ctx, orderID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			actor := actorAdminUserID
			for _, it := range items {
				if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					if err == repo.ErrNotFound {
						u.logger.Warn("restock skipped, product missing",
							zap.String("order_reference", o.Reference), zap.Int64("product_id", it.ProductID))
						continue
					}
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
				if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
					ProductID:   it.ProductID,
					ActorUserID: &actor,
					Delta:       it.Quantity,
					Reason:      "order cancelled " + o.Reference,
				}); err != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
			}
		}

		// 監査ログ（UPDATE_ORDER_STATUS）
		beforeJSON, _ := json.Marshal(orderAuditSnapshot{Status: o.Status, TrackingNumber: o.TrackingNumber, Notes: o.Notes})
		afterJSON, _ := json.Marshal(orderAuditSnapshot{Status: newStatus, TrackingNumber: tracking, Notes: notes})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			Before:       datatypes.JSON(beforeJSON),
			After:        datatypes.JSON(afterJSON),
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		updated, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		out = toOrderOutput(updated, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	if statusChange {
		u.logger.Info("order status changed",
			zap.String("order_reference", before.Reference),
			zap.String("from", string(before.Status)),
			zap.String("to", string(newStatus)),
			zap.Int64("actor_user_id", actorAdminUserID),
		)
		after := before
		after.Status = newStatus
		after.TrackingNumber = out.TrackingNumber
		if err := u.publisher.PublishOrderStatusChanged(ctx, after, before.Status, actorAdminUserID); err != nil {
			u.logger.Error("publish order.status_changed", zap.String("order_reference", before.Reference), zap.Error(err))
		}
	}
	return out, nil
}
