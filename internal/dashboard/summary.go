// Package dashboard aggregates the visible branches' products and sales for the
// role-specific dashboards.
package dashboard

import (
	"sort"
	"time"

	"nexile-backend/internal/auth"
	"nexile-backend/internal/config"
	"nexile-backend/internal/database"
	"nexile-backend/internal/inventory"
	"nexile-backend/internal/models"
	"nexile-backend/internal/scope"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

const (
	lowStockPreview = 5
	topProductLimit = 5
	trendDays       = 7
)

type LowStockItem struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	Stock         int    `json:"stock"`
	MinStockLevel int    `json:"min_stock_level"`
	BranchID      uint   `json:"branch_id"`
}

type TrendPoint struct {
	Date    string          `json:"date"`
	Label   string          `json:"label"` // Mon, Tue ...
	Revenue decimal.Decimal `json:"revenue"`
}

type CategoryRevenue struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type TopProduct struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type Summary struct {
	TotalRevenue      decimal.Decimal   `json:"total_revenue"`
	TransactionCount  int               `json:"transaction_count"`
	TodaySales        decimal.Decimal   `json:"today_sales"`
	TodayTransactions int               `json:"today_transactions"`
	ProductCount      int               `json:"product_count"`
	LowStockCount     int               `json:"low_stock_count"`
	LowStockItems     []LowStockItem    `json:"low_stock_items"`
	ExpiringSoonCount int               `json:"expiring_soon_count"`
	ExpiredCount      int               `json:"expired_count"`
	RevenueTrend      []TrendPoint      `json:"revenue_trend"`
	RevenueByCategory []CategoryRevenue `json:"revenue_by_category"`
	TopProducts       []TopProduct      `json:"top_products"`
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Summarize computes the dashboard figures. Products and transactions must already be
// restricted to the visible branches; items must be loaded.
func Summarize(products []models.Product, txns []models.Transaction, now time.Time, warningDays int) Summary {
	s := Summary{
		TotalRevenue:      decimal.Zero,
		TodaySales:        decimal.Zero,
		ProductCount:      len(products),
		LowStockItems:     []LowStockItem{},
		RevenueByCategory: []CategoryRevenue{},
		TopProducts:       []TopProduct{},
	}

	categoryOf := make(map[uint]string, len(products))
	for i := range products {
		p := &products[i]
		categoryOf[p.ID] = p.Category
		if p.IsLowStock() {
			s.LowStockCount++
			if len(s.LowStockItems) < lowStockPreview {
				s.LowStockItems = append(s.LowStockItems, LowStockItem{
					ID: p.ID, Name: p.Name, Stock: p.Stock, MinStockLevel: p.MinStockLevel, BranchID: p.BranchID,
				})
			}
		}
		switch inventory.StatusOf(p.ExpiryDate, now, warningDays) {
		case inventory.ExpiryExpired:
			s.ExpiredCount++
		case inventory.ExpiryWarning:
			s.ExpiringSoonCount++
		}
	}

	// Son 7 gün, bugün dahil
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(trendDays - 1))
	trend := make([]TrendPoint, trendDays)
	trendIdx := make(map[string]int, trendDays)
	for i := range trend {
		d := start.AddDate(0, 0, i)
		trend[i] = TrendPoint{Date: d.Format("2006-01-02"), Label: d.Format("Mon"), Revenue: decimal.Zero}
		trendIdx[trend[i].Date] = i
	}

	byCategory := make(map[string]decimal.Decimal)
	type agg struct {
		qty     int
		revenue decimal.Decimal
	}
	byName := make(map[string]*agg)

	for i := range txns {
		t := &txns[i]
		s.TransactionCount++
		s.TotalRevenue = s.TotalRevenue.Add(t.TotalAmount)

		local := t.Date.In(now.Location())
		if sameDay(local, now) {
			s.TodaySales = s.TodaySales.Add(t.TotalAmount)
			s.TodayTransactions++
		}
		if day, ok := trendIdx[local.Format("2006-01-02")]; ok {
			trend[day].Revenue = trend[day].Revenue.Add(t.TotalAmount)
		}

		for _, it := range t.Items {
			cat, ok := categoryOf[it.ProductID]
			if !ok {
				cat = "Uncategorized"
			}
			byCategory[cat] = byCategory[cat].Add(it.LineTotal())

			a, ok := byName[it.Name]
			if !ok {
				a = &agg{revenue: decimal.Zero}
				byName[it.Name] = a
			}
			a.qty += it.Quantity
			a.revenue = a.revenue.Add(it.LineTotal())
		}
	}
	s.RevenueTrend = trend

	for cat, rev := range byCategory {
		s.RevenueByCategory = append(s.RevenueByCategory, CategoryRevenue{Category: cat, Revenue: rev})
	}
	sort.Slice(s.RevenueByCategory, func(i, j int) bool {
		a, b := s.RevenueByCategory[i], s.RevenueByCategory[j]
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		return a.Category < b.Category
	})

	for name, a := range byName {
		s.TopProducts = append(s.TopProducts, TopProduct{Name: name, Quantity: a.qty, Revenue: a.revenue})
	}
	sort.Slice(s.TopProducts, func(i, j int) bool {
		a, b := s.TopProducts[i], s.TopProducts[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		return a.Name < b.Name
	})
	if len(s.TopProducts) > topProductLimit {
		s.TopProducts = s.TopProducts[:topProductLimit]
	}
	return s
}

// loadVisible returns the caller's visible set with its products and transactions
// (newest first, items loaded).
func loadVisible(c *fiber.Ctx) (scope.Visibility, []models.Product, []models.Transaction, error) {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return scope.Visibility{}, nil, nil, err
	}
	vis, err := scope.FromQuery(c, user)
	if err != nil {
		return scope.Visibility{}, nil, nil, err
	}

	var products []models.Product
	if err := vis.Apply(database.DB.Model(&models.Product{}), "branch_id").Order("name asc, id asc").Find(&products).Error; err != nil {
		return vis, nil, nil, fiber.NewError(fiber.StatusInternalServerError, "Products could not be loaded")
	}
	var txns []models.Transaction
	if err := vis.Apply(database.DB.Model(&models.Transaction{}), "branch_id").Preload("Items").Order("date desc, id desc").Find(&txns).Error; err != nil {
		return vis, nil, nil, fiber.NewError(fiber.StatusInternalServerError, "Transactions could not be loaded")
	}
	return vis, products, txns, nil
}

// GET /api/dashboard/summary?branch_id=
func SummaryHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		_, products, txns, err := loadVisible(c)
		if err != nil {
			return err
		}
		return c.JSON(Summarize(products, txns, time.Now(), cfg.ExpiryWarningDays))
	}
}
