package inventory

import (
	"strings"
	"time"

	"nexile-backend/internal/models"

	"github.com/shopspring/decimal"
)

type ExpiryStatus string

const (
	ExpiryGood    ExpiryStatus = "GOOD"
	ExpiryWarning ExpiryStatus = "WARNING"
	ExpiryExpired ExpiryStatus = "EXPIRED"
)

const (
	dateLayout           = "2006-01-02"
	defaultMinStockLevel = 10
)

// DaysUntil counts whole calendar days from now to the expiry date; negative once expired.
func DaysUntil(expiry, now time.Time) int {
	e := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(n).Hours() / 24)
}

func StatusOf(expiry, now time.Time, warningDays int) ExpiryStatus {
	days := DaysUntil(expiry, now)
	switch {
	case days < 0:
		return ExpiryExpired
	case days <= warningDays:
		return ExpiryWarning
	default:
		return ExpiryGood
	}
}

type ProductResponse struct {
	ID            uint            `json:"id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Barcode       string          `json:"barcode,omitempty"`
	BatchNumber   string          `json:"batch_number"`
	ExpiryDate    string          `json:"expiry_date"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	Stock         int             `json:"stock"`
	MinStockLevel int             `json:"min_stock_level"`
	BranchID      uint            `json:"branch_id"`
	LowStock      bool            `json:"low_stock"`
	DaysToExpiry  int             `json:"days_to_expiry"`
	ExpiryStatus  ExpiryStatus    `json:"expiry_status"`
}

func NewProductResponse(p *models.Product, now time.Time, warningDays int) ProductResponse {
	return ProductResponse{
		ID:            p.ID,
		Name:          p.Name,
		Category:      p.Category,
		Barcode:       p.Barcode,
		BatchNumber:   p.BatchNumber,
		ExpiryDate:    p.ExpiryDate.Format(dateLayout),
		CostPrice:     p.CostPrice,
		SellingPrice:  p.SellingPrice,
		Stock:         p.Stock,
		MinStockLevel: p.MinStockLevel,
		BranchID:      p.BranchID,
		LowStock:      p.IsLowStock(),
		DaysToExpiry:  DaysUntil(p.ExpiryDate, now),
		ExpiryStatus:  StatusOf(p.ExpiryDate, now, warningDays),
	}
}

// ProductInput is the writable part of a product, shared by create and import.
type ProductInput struct {
	Name          string          `json:"name" validate:"required"`
	Category      string          `json:"category" validate:"required"`
	Barcode       string          `json:"barcode"`
	BatchNumber   string          `json:"batch_number" validate:"required"`
	ExpiryDate    string          `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	Stock         int             `json:"stock" validate:"gte=0"`
	MinStockLevel *int            `json:"min_stock_level" validate:"omitempty,gte=0"`
}

func (in *ProductInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.Barcode = strings.TrimSpace(in.Barcode)
	in.BatchNumber = strings.TrimSpace(in.BatchNumber)
	in.ExpiryDate = strings.TrimSpace(in.ExpiryDate)
}

// toModel builds the product; the input must already be validated.
func (in *ProductInput) toModel(branchID uint) (models.Product, error) {
	expiry, err := time.Parse(dateLayout, in.ExpiryDate)
	if err != nil {
		return models.Product{}, err
	}
	minLevel := defaultMinStockLevel
	if in.MinStockLevel != nil {
		minLevel = *in.MinStockLevel
	}
	return models.Product{
		Name:          in.Name,
		Category:      in.Category,
		Barcode:       in.Barcode,
		BatchNumber:   in.BatchNumber,
		ExpiryDate:    expiry,
		CostPrice:     in.CostPrice,
		SellingPrice:  in.SellingPrice,
		Stock:         in.Stock,
		MinStockLevel: minLevel,
		BranchID:      branchID,
	}, nil
}

func checkPrices(cost, selling decimal.Decimal) string {
	if cost.IsNegative() {
		return "cost_price must not be negative"
	}
	if selling.IsNegative() {
		return "selling_price must not be negative"
	}
	return ""
}
