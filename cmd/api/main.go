package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shrimpshop/internal/config"
	"shrimpshop/internal/domain/pricing"
	"shrimpshop/internal/handler"
	"shrimpshop/internal/infra/auth"
	"shrimpshop/internal/infra/db"
	"shrimpshop/internal/infra/events"
	"shrimpshop/internal/infra/logger"
	"shrimpshop/internal/infra/notify"
	"shrimpshop/internal/infra/payment"
	infraRepo "shrimpshop/internal/infra/repository"
	"shrimpshop/internal/infra/session"
	"shrimpshop/internal/middleware"
	"shrimpshop/internal/server"
	"shrimpshop/internal/usecase"
	"shrimpshop/internal/validator"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now().UTC()
}

func main() {
	// .envは無くてもよい（本番は環境変数で渡す）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewZapLogger(&logger.ZapLoggerConfig{
		IsDevelopment:     !cfg.IsProd(),
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg, log)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	//Redis（カートセッション）
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	cartTTL := time.Duration(cfg.Redis.CartTTLHours) * time.Hour
	cartStore := session.NewRedisCartStore(rdb, cartTTL, log)

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	categoryRepo := infraRepo.NewCategoryGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//外部サービス
	gateway := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey:        cfg.Stripe.SecretKey,
		WebhookSecret:    cfg.Stripe.WebhookSecret,
		Currency:         cfg.Stripe.Currency,
		AllowedCountries: cfg.Stripe.AllowedCountries,
		SiteURL:          cfg.SiteURL,
	})
	notifier, err := notify.NewMailNotifier(notify.MailConfig{
		SMTPHost:     cfg.Mail.SMTPHost,
		SMTPPort:     cfg.Mail.SMTPPort,
		SMTPUsername: cfg.Mail.SMTPUsername,
		SMTPPassword: cfg.Mail.SMTPPassword,
		From:         cfg.Mail.From,
		AdminEmail:   cfg.Mail.AdminEmail,
	}, log)
	if err != nil {
		return err
	}

	var publisher usecase.OrderEventPublisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return err
		}
		defer kp.Close()
		publisher = kp
	} else {
		log.Info("KAFKA_BROKERS not set, order events disabled")
	}

	issuer, err := auth.NewJWTIssuer(cfg.JWTSecret, auth.DefaultAccessTTL)
	if err != nil {
		return err
	}

	//usecaseに渡す部品
	idGen := &uuidGenerator{}
	clock := &realClock{}
	rates := pricing.Rates{Standard: cfg.Shipping.Standard, Elevated: cfg.Shipping.Elevated}

	//Usecase生成
	productUC := usecase.NewProductUsecase(productRepo, categoryRepo, txm, auditRepo, clock, log)
	cartUC := usecase.NewCartUsecase(cartStore, productRepo, rates, log)
	orderUC := usecase.NewOrderUsecase(usecase.OrderUsecaseDeps{
		Tx:          txm,
		Orders:      orderRepo,
		OrderItems:  orderItemRepo,
		Store:       cartStore,
		ProductRepo: productRepo,
		Gateway:     gateway,
		Notifier:    notifier,
		Publisher:   publisher,
		Validator:   validator.NewCheckoutValidator(),
		Rates:       rates,
		IDGen:       idGen,
		Clock:       clock,
		Logger:      log,
	})
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, publisher, clock, log)
	authUC := usecase.NewAuthUsecase(userRepo, auth.NewBcryptPasswordVerifier(), issuer, validator.NewAuthValidator(), clock, log)

	//Handler生成
	e := server.New(cfg, log)
	server.RegisterRoutes(e, server.Handlers{
		Product:      handler.NewProductHandler(productUC),
		Cart:         handler.NewCartHandler(cartUC),
		Checkout:     handler.NewCheckoutHandler(orderUC, cartUC, log),
		Webhook:      handler.NewWebhookHandler(orderUC),
		Order:        handler.NewOrderHandler(orderUC),
		Auth:         handler.NewAuthHandler(authUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
	}, server.RouteDeps{
		JWTSecret:   cfg.JWTSecret,
		Users:       userRepo,
		CartSession: middleware.CartSession(middleware.CartSessionConfig{TTL: cartTTL, Secure: cfg.IsProd()}),
		AddToCart:   server.RateLimit(cfg.AddToCartRatePerMin),
		Login:       server.RateLimit(10),
	})

	//Server起動
	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}
	return server.Start(ctx, e, addr, log)
}
