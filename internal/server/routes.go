package server

import (
	"shrimpshop/internal/domain/model"
	"shrimpshop/internal/handler"
	"shrimpshop/internal/middleware"
	"shrimpshop/internal/repository"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Product      *handler.ProductHandler
	Cart         *handler.CartHandler
	Checkout     *handler.CheckoutHandler
	Webhook      *handler.WebhookHandler
	Order        *handler.OrderHandler
	Auth         *handler.AuthHandler
	AdminOrder   *handler.AdminOrderHandler
	AdminProduct *handler.AdminProductHandler
}

type RouteDeps struct {
	JWTSecret   string
	Users       repository.UserRepository
	CartSession echo.MiddlewareFunc
	AddToCart   echo.MiddlewareFunc
	Login       echo.MiddlewareFunc
}

func RegisterRoutes(e *echo.Echo, h Handlers, d RouteDeps) {
	//公開
	h.Product.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, d.CartSession, d.AddToCart)
	h.Checkout.RegisterRoutes(e, d.CartSession)
	h.Webhook.RegisterRoutes(e)
	h.Order.RegisterRoutes(e)
	h.Auth.RegisterRoutes(e, d.Login)

	//管理（注文はSTAFFも可、在庫と監査ログはADMINのみ）
	admin := e.Group("/admin",
		middleware.AuthJWT(d.JWTSecret),
		middleware.TokenVersionGuard(d.Users),
	)
	h.AdminOrder.RegisterRoutes(admin.Group("", middleware.AdminRoleGuard(model.RoleAdmin, model.RoleStaff)))
	h.AdminProduct.RegisterRoutes(admin.Group("", middleware.AdminRoleGuard()))
}
