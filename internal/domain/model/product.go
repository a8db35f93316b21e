package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// この数以下は残りわずか
const LowStockThreshold = 5

type StockStatus string

const (
	StockStatusOut StockStatus = "out_of_stock"
	StockStatusLow StockStatus = "low_stock"
	StockStatusIn  StockStatus = "in_stock"
)

var MinPrice = decimal.RequireFromString("0.01")

type Product struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"type:varchar(200);not null" json:"name"`
	Slug        string          `gorm:"type:varchar(200);not null;uniqueIndex" json:"slug"`
	CategoryID  int64           `gorm:"not null;index" json:"category_id"`
	Category    Category        `gorm:"foreignKey:CategoryID" json:"category"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	Stock       int64           `gorm:"not null;default:0" json:"stock"`
	// stockから導出する。単独で更新しない
	Available       bool           `gorm:"not null;default:false;index" json:"available"`
	Size            string         `gorm:"type:varchar(20)" json:"size,omitempty"`
	SpecialHandling bool           `gorm:"not null;default:false" json:"special_handling"`
	CreatedAt       time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// 保存のたびにavailableを在庫から計算し直す
func (p *Product) BeforeSave(tx *gorm.DB) error {
	if p.Price.LessThan(MinPrice) {
		return ErrInvalidPrice
	}
	if p.Stock < 0 {
		return ErrNegativeStock
	}
	p.Available = p.Stock > 0
	return nil
}

// 商品自体かカテゴリのどちらかにフラグがあれば特別配送
func (p Product) RequiresSpecialHandling() bool {
	return p.SpecialHandling || p.Category.SpecialHandling
}

func (p Product) StockStatus() StockStatus {
	switch {
	case p.Stock <= 0:
		return StockStatusOut
	case p.Stock <= LowStockThreshold:
		return StockStatusLow
	default:
		return StockStatusIn
	}
}
