package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            uint            `gorm:"primaryKey"`
	Name          string          `gorm:"size:150;not null"`
	Category      string          `gorm:"size:100;not null;index"`
	Barcode       string          `gorm:"size:64;index"`
	BatchNumber   string          `gorm:"size:64;not null"`
	ExpiryDate    time.Time       `gorm:"not null;index"`
	CostPrice     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	SellingPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Stock         int             `gorm:"not null"`
	MinStockLevel int             `gorm:"not null"`
	BranchID      uint            `gorm:"index;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsLowStock: stok minimum seviyede veya altında
func (p *Product) IsLowStock() bool {
	return p.Stock <= p.MinStockLevel
}
