package handler

import (
	"net/http"
	"strconv"
	"time"

	"shrimpshop/internal/domain/model"
	"shrimpshop/internal/middleware"
	"shrimpshop/internal/repository"
	"shrimpshop/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 在庫更新の入力
type InventoryUpdateRequest struct {
	Stock  *int64 `json:"stock"`
	Reason string `json:"reason"`
}

type BulkInventoryItem struct {
	ProductID int64  `json:"product_id"`
	Stock     *int64 `json:"stock"`
	Reason    string `json:"reason"`
}

type BulkInventoryUpdateRequest struct {
	Items []BulkInventoryItem `json:"items"`
}

type BulkInventoryUpdateResponse struct {
	Items []usecase.InventoryUpdateOutput `json:"items"`
}

// /admin/inventory と /admin/audit-logs
type AdminProductHandler struct {
	uc *usecase.ProductUsecase
}

func NewAdminProductHandler(uc *usecase.ProductUsecase) *AdminProductHandler {
	return &AdminProductHandler{uc: uc}
}

func (h *AdminProductHandler) RegisterRoutes(g *echo.Group) {
	g.PUT("/inventory", h.bulkUpdateInventory)
	g.PUT("/inventory/:product_id", h.updateInventory)
	g.GET("/inventory/:product_id/adjustments", h.listAdjustments)
	g.GET("/audit-logs", h.listAuditLogs)
}

func (h *AdminProductHandler) updateInventory(c echo.Context) error {
	productID, ok := paramID(c, "product_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
	}

	var req InventoryUpdateRequest
	if err := c.Bind(&req); err != nil || req.Stock == nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := middleware.ActorUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.AdminUpdateInventory(c.Request().Context(), adminID, usecase.InventoryUpdateInput{
		ProductID: productID,
		Stock:     *req.Stock,
		Reason:    req.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) bulkUpdateInventory(c echo.Context) error {
	var req BulkInventoryUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := middleware.ActorUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	ins := make([]usecase.InventoryUpdateInput, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Stock == nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "stock is required"})
		}
		ins = append(ins, usecase.InventoryUpdateInput{ProductID: it.ProductID, Stock: *it.Stock, Reason: it.Reason})
	}

	outs, err := h.uc.AdminBulkUpdateInventory(c.Request().Context(), adminID, ins)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, BulkInventoryUpdateResponse{Items: outs})
}

func (h *AdminProductHandler) listAdjustments(c echo.Context) error {
	productID, ok := paramID(c, "product_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
	}

	adjs, err := h.uc.AdminListAdjustments(c.Request().Context(), productID, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, adjs)
}

func (h *AdminProductHandler) listAuditLogs(c echo.Context) error {
	f := repository.AuditLogFilter{}

	var ok bool
	if f.Limit, ok = queryInt(c, "limit", 50); !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
	}
	if f.Offset, ok = queryInt(c, "offset", 0); !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid offset"})
	}
	if v := c.QueryParam("actor_user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid actor_user_id"})
		}
		f.ActorUserID = &id
	}
	if v := c.QueryParam("action"); v != "" {
		a := model.AuditAction(v)
		f.Action = &a
	}
	if v := c.QueryParam("resource_type"); v != "" {
		rt := model.AuditResourceType(v)
		f.ResourceType = &rt
	}
	if v := c.QueryParam("resource_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid resource_id"})
		}
		f.ResourceID = &id
	}
	if v := c.QueryParam("from"); v != "" {
		tm, err := time.Parse(dateLayout, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid from"})
		}
		f.CreatedFrom = &tm
	}
	if v := c.QueryParam("to"); v != "" {
		tm, err := time.Parse(dateLayout, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid to"})
		}
		tm = tm.AddDate(0, 0, 1)
		f.CreatedTo = &tm
	}

	logs, err := h.uc.AdminListAuditLogs(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}
