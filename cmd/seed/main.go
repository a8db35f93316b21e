package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"shrimpshop/internal/config"
	"shrimpshop/internal/domain/model"
	"shrimpshop/internal/infra/auth"
	"shrimpshop/internal/infra/db"
	infraRepo "shrimpshop/internal/infra/repository"
	"shrimpshop/internal/repository"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type seedProduct struct {
	Name, Slug, Category, Size, Price, Description string
	Stock                                          int64
}

var categories = []model.Category{
	{Name: "Live Shrimp", Slug: "live-shrimp", Position: 1, SpecialHandling: true,
		Description: "Neocaridina and Caridina shrimp, shipped with heat or cool packs."},
	{Name: "Plants & Moss", Slug: "plants", Position: 2,
		Description: "Mosses, floaters and easy plants for shrimp tanks."},
	{Name: "Food & Supplements", Slug: "food", Position: 3},
	{Name: "Equipment", Slug: "equipment", Position: 4},
}

var products = []seedProduct{
	{Name: "Blue Dream Shrimp", Slug: "blue-dream", Category: "live-shrimp", Size: "adult", Price: "5.00", Stock: 40,
		Description: "Deep blue Neocaridina davidi."},
	{Name: "Red Cherry Shrimp", Slug: "red-cherry", Category: "live-shrimp", Size: "juvenile", Price: "3.50", Stock: 60},
	{Name: "Crystal Red Shrimp", Slug: "crystal-red", Category: "live-shrimp", Size: "adult", Price: "9.00", Stock: 4},
	{Name: "Java Moss Portion", Slug: "java-moss", Category: "plants", Price: "4.00", Stock: 25},
	{Name: "Marimo Moss Ball", Slug: "moss-ball", Category: "plants", Price: "3.00", Stock: 30},
	{Name: "Shrimp Pellets 30g", Slug: "shrimp-pellets", Category: "food", Price: "6.50", Stock: 50},
	{Name: "Sponge Filter", Slug: "sponge-filter", Category: "equipment", Price: "8.99", Stock: 0},
}

func main() {
	_ = godotenv.Load()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.LoadDatabase()
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	gormDB, err := db.Connect(cfg, log)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	if err := db.Migrate(gormDB); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	ctx := context.Background()
	catRepo := infraRepo.NewCategoryGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	userRepo := infraRepo.NewUserGormRepository(gormDB)

	//カテゴリ（既存はそのまま）
	catIDs := map[string]int64{}
	for _, c := range categories {
		existing, err := catRepo.FindBySlug(ctx, c.Slug)
		if err == nil {
			catIDs[c.Slug] = existing.ID
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			log.Fatal("find category", zap.String("slug", c.Slug), zap.Error(err))
		}
		created, err := catRepo.Create(ctx, c)
		if err != nil {
			log.Fatal("create category", zap.String("slug", c.Slug), zap.Error(err))
		}
		catIDs[c.Slug] = created.ID
		log.Info("category created", zap.String("slug", c.Slug))
	}

	//商品（slug重複はスキップ）
	for _, sp := range products {
		p := model.Product{
			Name:        sp.Name,
			Slug:        sp.Slug,
			CategoryID:  catIDs[sp.Category],
			Description: sp.Description,
			Price:       decimal.RequireFromString(sp.Price),
			Stock:       sp.Stock,
			Size:        sp.Size,
		}
		if _, err := productRepo.Create(ctx, p); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			log.Fatal("create product", zap.String("slug", sp.Slug), zap.Error(err))
		}
		log.Info("product created", zap.String("slug", sp.Slug))
	}

	//管理ユーザー
	email := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Info("ADMIN_EMAIL/ADMIN_PASSWORD not set, admin user skipped")
		return
	}
	if _, err := userRepo.FindByEmail(ctx, email); err == nil {
		log.Info("admin user exists", zap.String("email", email))
		return
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		log.Fatal("find admin", zap.Error(err))
	}

	hash, err := auth.NewBcryptPasswordHasher(12).Hash(password)
	if err != nil {
		log.Fatal("hash password", zap.Error(err))
	}
	if err := userRepo.Create(ctx, &model.User{
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		IsActive:     true,
	}); err != nil {
		log.Fatal("create admin", zap.Error(err))
	}
	log.Info("admin user created", zap.String("email", email))
}
