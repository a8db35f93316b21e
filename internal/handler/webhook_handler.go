package handler

import (
	"io"
	"net/http"

	"shrimpshop/internal/usecase"

	"github.com/labstack/echo/v4"
)

const maxWebhookBody = 64 << 10

// 決済代行からの通知。応答はステータスコードのみ
type WebhookHandler struct {
	uc *usecase.OrderUsecase
}

func NewWebhookHandler(uc *usecase.OrderUsecase) *WebhookHandler {
	return &WebhookHandler{uc: uc}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/stripe", h.stripe)
}

func (h *WebhookHandler) stripe(c echo.Context) error {
	//署名検証には生のbodyが必要
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	err = h.uc.HandlePaymentWebhook(c.Request().Context(), payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		if he, ok := usecase.AsHTTPError(err); ok {
			return c.NoContent(he.Status)
		}
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusOK)
}
