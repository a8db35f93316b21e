package handler

import (
	"net/http"

	"shrimpshop/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 購入者向けの注文照会。アカウントが無いので注文番号で引く
type OrderHandler struct {
	uc *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{uc: uc}
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/orders/:reference", h.detail)
}

func (h *OrderHandler) detail(c echo.Context) error {
	out, err := h.uc.GetOrderByReference(c.Request().Context(), c.Param("reference"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
