package dashboard

import (
	"time"

	"nexile-backend/internal/auth"
	"nexile-backend/internal/database"
	"nexile-backend/internal/models"
	"nexile-backend/internal/scope"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type SalesChartPoint struct {
	Label  string          `json:"label"` // gün / hafta başlangıcı / ay başlangıcı
	Cash   decimal.Decimal `json:"cash"`
	Card   decimal.Decimal `json:"card"`
	Online decimal.Decimal `json:"online"`
	Total  decimal.Decimal `json:"total"`
	Count  int             `json:"count"`
}

type SalesChartResponse struct {
	Period      string            `json:"period"` // daily | weekly | monthly
	From        string            `json:"from"`
	To          string            `json:"to"`
	Points      []SalesChartPoint `json:"points"`
	GrandTotals SalesChartPoint   `json:"grand_totals"`
}

func newPoint(label string) SalesChartPoint {
	return SalesChartPoint{Label: label, Cash: decimal.Zero, Card: decimal.Zero, Online: decimal.Zero, Total: decimal.Zero}
}

func (p *SalesChartPoint) add(t *models.Transaction) {
	switch t.PaymentMethod {
	case models.PaymentCash:
		p.Cash = p.Cash.Add(t.TotalAmount)
	case models.PaymentCard:
		p.Card = p.Card.Add(t.TotalAmount)
	case models.PaymentOnline:
		p.Online = p.Online.Add(t.TotalAmount)
	}
	p.Total = p.Total.Add(t.TotalAmount)
	p.Count++
}

// bucketStart returns the start of the bucket holding t.
func bucketStart(period string, t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch period {
	case "weekly":
		// hafta pazartesi başlar
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case "monthly":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
	return day
}

func step(period string, t time.Time, n int) time.Time {
	switch period {
	case "weekly":
		return t.AddDate(0, 0, 7*n)
	case "monthly":
		return t.AddDate(0, n, 0)
	}
	return t.AddDate(0, 0, n)
}

// BuildSalesChart buckets txns into count periods ending with the one containing now.
func BuildSalesChart(period string, count int, txns []models.Transaction, now time.Time) SalesChartResponse {
	last := bucketStart(period, now)
	first := step(period, last, -(count - 1))
	end := step(period, last, 1)

	points := make([]SalesChartPoint, count)
	index := make(map[string]int, count)
	for i := 0; i < count; i++ {
		b := step(period, first, i)
		points[i] = newPoint(b.Format("2006-01-02"))
		index[points[i].Label] = i
	}

	grand := newPoint("total")
	for i := range txns {
		t := &txns[i]
		local := t.Date.In(now.Location())
		if local.Before(first) || !local.Before(end) {
			continue
		}
		if idx, ok := index[bucketStart(period, local).Format("2006-01-02")]; ok {
			points[idx].add(t)
			grand.add(t)
		}
	}

	return SalesChartResponse{
		Period:      period,
		From:        first.Format("2006-01-02"),
		To:          end.AddDate(0, 0, -1).Format("2006-01-02"),
		Points:      points,
		GrandTotals: grand,
	}
}

// GET /api/dashboard/sales-chart?period=daily&count=7&branch_id=1
func SalesChartHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		vis, err := scope.FromQuery(c, user)
		if err != nil {
			return err
		}

		period := c.Query("period", "daily")
		count := c.QueryInt("count", 0)
		if count < 0 || count > 366 {
			return fiber.NewError(fiber.StatusBadRequest, "count is invalid")
		}
		switch period {
		case "weekly":
			if count == 0 {
				count = 8
			}
		case "monthly":
			if count == 0 {
				count = 12
			}
		case "daily":
			if count == 0 {
				count = 7
			}
		default:
			return fiber.NewError(fiber.StatusBadRequest, "period must be daily, weekly or monthly")
		}

		now := time.Now()
		first := step(period, bucketStart(period, now), -(count - 1))

		var txns []models.Transaction
		if err := vis.Apply(database.DB.Model(&models.Transaction{}), "branch_id").
			Where("date >= ?", first).
			Order("date asc").
			Find(&txns).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Sales data could not be aggregated")
		}

		return c.JSON(BuildSalesChart(period, count, txns, now))
	}
}
