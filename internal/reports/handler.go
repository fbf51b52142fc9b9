package reports

import (
	"net/url"
	"strings"
	"time"

	"nexile-backend/internal/auth"
	"nexile-backend/internal/config"
	"nexile-backend/internal/database"
	"nexile-backend/internal/models"
	"nexile-backend/internal/scope"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const globalBranchName = "Global Enterprise"

type ShareResponse struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// request holds what both report endpoints resolve from the query string.
type request struct {
	typ        Type
	vis        scope.Visibility
	period     Period
	branchName string
	now        time.Time
}

func parseRequest(c *fiber.Ctx) (*request, error) {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return nil, err
	}

	typ, ok := ParseType(c.Params("type"))
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "Unknown report type")
	}
	if !typ.Allowed(user.Role) {
		return nil, fiber.NewError(fiber.StatusForbidden, "This report is available to managers and owners only")
	}

	vis, err := scope.FromQuery(c, user)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	period, err := ParsePeriod(c.Query("preset"), c.Query("from"), c.Query("to"), now)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Date range must be a preset or from/to as YYYY-MM-DD with from <= to")
	}

	name := globalBranchName
	if id, ok := vis.Single(); ok {
		var b models.Branch
		if err := database.DB.First(&b, id).Error; err == nil {
			name = b.Name
		}
	}

	return &request{typ: typ, vis: vis, period: period, branchName: name, now: now}, nil
}

func loadTransactions(r *request) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.vis.Apply(database.DB.Model(&models.Transaction{}), "branch_id").
		Where("date >= ? AND date < ?", r.period.From, r.period.End()).
		Preload("Items").
		Order("date desc, id desc").
		Find(&txns).Error
	return txns, err
}

// GET /api/reports/:type?branch_id=&preset=&from=&to=&q=&format=json|csv|xlsx
func ReportHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		r, err := parseRequest(c)
		if err != nil {
			return err
		}

		in := Input{
			Now:        r.now,
			Period:     r.period,
			Query:      c.Query("q"),
			BranchName: r.branchName,
			RiskDays:   cfg.ExpiryRiskDays,
		}

		switch r.typ {
		case DailySales, ProfitLoss:
			if in.Transactions, err = loadTransactions(r); err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Transactions could not be loaded")
			}
		}
		switch r.typ {
		case StockLevels, LowStock, ExpiryRisk, ProfitLoss:
			if err := r.vis.Apply(database.DB.Model(&models.Product{}), "branch_id").
				Order("name asc, id asc").Find(&in.Products).Error; err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Products could not be loaded")
			}
		case BranchPerf:
			if err := r.vis.Apply(database.DB.Model(&models.Branch{}), "id").
				Order("name asc").Find(&in.Branches).Error; err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Branches could not be loaded")
			}
			xdb, err := database.SQLX(database.DB)
			if err != nil {
				return err
			}
			if in.BranchTotals, err = BranchTotals(c.UserContext(), xdb, r.vis, r.period); err != nil {
				zap.L().Error("branch aggregate failed", zap.Error(err))
				return fiber.NewError(fiber.StatusInternalServerError, "Branch totals could not be computed")
			}
		}

		tbl := Build(r.typ, in)

		switch strings.ToLower(c.Query("format", "json")) {
		case "csv":
			body, err := CSV(tbl)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "CSV could not be written")
			}
			c.Attachment(FileName(r.typ, r.branchName, r.now, "csv"))
			c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
			return c.Send(body)
		case "xlsx":
			body, err := XLSX(tbl)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Workbook could not be written")
			}
			c.Attachment(FileName(r.typ, r.branchName, r.now, "xlsx"))
			c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			return c.Send(body)
		case "json":
			return c.JSON(tbl)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "format must be json, csv or xlsx")
		}
	}
}

// GET /api/reports/:type/share?branch_id=&preset=&from=&to=
func ShareHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		r, err := parseRequest(c)
		if err != nil {
			return err
		}
		txns, err := loadTransactions(r)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Transactions could not be loaded")
		}

		text := ShareText(r.typ, r.branchName, r.period, txns)
		return c.JSON(ShareResponse{Text: text, URL: ShareURL(text)})
	}
}

// ShareURL builds the wa.me link; spaces are encoded as %20.
func ShareURL(text string) string {
	return "https://wa.me/?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}
