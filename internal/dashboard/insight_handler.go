package dashboard

import (
	"context"
	"time"

	"nexile-backend/internal/insight"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type InsightResponse struct {
	Insight string `json:"insight"`
	Cached  bool   `json:"cached"`
}

// GET /api/dashboard/insight?branch_id=
// Always 200: generator failures come back as the fallback text.
func InsightHandler(svc *insight.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		vis, products, txns, err := loadVisible(c)
		if err != nil {
			return err
		}

		facts := make([]insight.ProductFact, 0, len(products))
		for _, p := range products {
			facts = append(facts, insight.ProductFact{
				Name: p.Name, Category: p.Category, Stock: p.Stock, MinStockLevel: p.MinStockLevel,
			})
		}
		totals := make([]decimal.Decimal, 0, len(txns))
		for _, t := range txns {
			totals = append(totals, t.TotalAmount)
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 20*time.Second)
		defer cancel()

		text, cached := svc.Insight(ctx, vis.Key(), insight.BuildSnapshot(facts, totals))
		return c.JSON(InsightResponse{Insight: text, Cached: cached})
	}
}
