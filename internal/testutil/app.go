package testutil

import (
	"time"

	"shrimpshop/internal/domain/model"
	"shrimpshop/internal/domain/pricing"
	"shrimpshop/internal/usecase"
	"shrimpshop/internal/validator"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// usecase一式をインメモリで組み立てる
type App struct {
	Store     *Store
	Carts     *CartStore
	Gateway   *Gateway
	Notifier  *Notifier
	Publisher *Publisher
	Clock     Clock
	// Info以上のログ
	Logs *observer.ObservedLogs

	Cart        *usecase.CartUsecase
	Orders      *usecase.OrderUsecase
	AdminOrders *usecase.AdminOrderUsecase
	Products    *usecase.ProductUsecase

	LiveShrimp model.Category
	Plants     model.Category
	// 特別配送（生体）
	BlueDream model.Product
	MossBall  model.Product
}

func NewApp() *App {
	a := &App{
		Store:     NewStore(),
		Carts:     NewCartStore(),
		Gateway:   NewGateway(),
		Notifier:  &Notifier{},
		Publisher: &Publisher{},
		Clock:     Clock{T: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	core, logs := observer.New(zapcore.InfoLevel)
	a.Logs = logs
	log := zap.New(core)
	s := a.Store

	a.LiveShrimp = s.AddCategory(model.Category{Name: "Live Shrimp", Slug: "live-shrimp", Position: 1, SpecialHandling: true})
	a.Plants = s.AddCategory(model.Category{Name: "Plants", Slug: "plants", Position: 2})
	a.BlueDream = s.AddProduct(model.Product{
		Name: "Blue Dream", Slug: "blue-dream", CategoryID: a.LiveShrimp.ID,
		Price: decimal.RequireFromString("5.00"), Stock: 10,
	})
	a.MossBall = s.AddProduct(model.Product{
		Name: "Moss Ball", Slug: "moss-ball", CategoryID: a.Plants.ID,
		Price: decimal.RequireFromString("3.00"), Stock: 20,
	})

	a.Cart = usecase.NewCartUsecase(a.Carts, s.ProductRepo(), pricing.DefaultRates(), log)
	a.Orders = usecase.NewOrderUsecase(usecase.OrderUsecaseDeps{
		Tx:          s.TxManager(),
		Orders:      s.OrderRepo(),
		OrderItems:  s.OrderItemRepo(),
		Store:       a.Carts,
		ProductRepo: s.ProductRepo(),
		Gateway:     a.Gateway,
		Notifier:    a.Notifier,
		Publisher:   a.Publisher,
		Validator:   validator.NewCheckoutValidator(),
		Rates:       pricing.DefaultRates(),
		IDGen:       &SeqID{},
		Clock:       a.Clock,
		Logger:      log,
	})
	a.AdminOrders = usecase.NewAdminOrderUsecase(s.TxManager(), a.Publisher, a.Clock, log)
	a.Products = usecase.NewProductUsecase(s.ProductRepo(), s.CategoryRepo(), s.TxManager(), s.AuditLogRepo(), a.Clock, log)
	return a
}
