package handler

import (
	"net/http"

	"shrimpshop/internal/middleware"
	"shrimpshop/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// 注文確定と決済からの戻り先
type CheckoutHandler struct {
	orders *usecase.OrderUsecase
	carts  *usecase.CartUsecase
	log    *zap.Logger
}

func NewCheckoutHandler(orders *usecase.OrderUsecase, carts *usecase.CartUsecase, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{orders: orders, carts: carts, log: log}
}

type CheckoutRequest struct {
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	AgreeToTerms bool   `json:"agree_to_terms"`
}

type CheckoutResultResponse struct {
	Message   string `json:"message"`
	Reference string `json:"reference,omitempty"`
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, session echo.MiddlewareFunc) {
	g := e.Group("/checkout", session)

	g.POST("", h.checkout)
	g.GET("/success", h.success)
	g.GET("/cancel", h.cancel)
}

func (h *CheckoutHandler) checkout(c echo.Context) error {
	sid, ok := middleware.CartSessionID(c)
	if !ok {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "session error"})
	}

	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.orders.PlaceOrder(c.Request().Context(), sid, usecase.PlaceOrderInput{
		Email:        req.Email,
		Phone:        req.Phone,
		AgreeToTerms: req.AgreeToTerms,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// 決済完了の戻り。注文の確定はWebhookで行うのでここではカートを消すだけ
func (h *CheckoutHandler) success(c echo.Context) error {
	if sid, ok := middleware.CartSessionID(c); ok {
		if err := h.carts.ClearCart(c.Request().Context(), sid); err != nil {
			h.log.Warn("clear cart after checkout",
				zap.String("session_id", sid),
				zap.String("checkout_session_id", c.QueryParam("session_id")),
				zap.Error(err),
			)
		}
	}
	return c.JSON(http.StatusOK, CheckoutResultResponse{
		Message:   "Payment successful! Thank you for your order.",
		Reference: c.QueryParam("ref"),
	})
}

func (h *CheckoutHandler) cancel(c echo.Context) error {
	return c.JSON(http.StatusOK, CheckoutResultResponse{
		Message:   "Payment was cancelled. Your cart has been kept.",
		Reference: c.QueryParam("ref"),
	})
}
