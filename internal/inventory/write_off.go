package inventory

import (
	"fmt"
	"strings"
	"time"

	"nexile-backend/internal/audit"
	"nexile-backend/internal/auth"
	"nexile-backend/internal/database"
	"nexile-backend/internal/models"
	"nexile-backend/internal/scope"
	"nexile-backend/internal/validate"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const entityWriteOff = "write_off"

type CreateWriteOffRequest struct {
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"` // boşsa bugün
	Quantity int    `json:"quantity" validate:"gt=0"`
	Reason   string `json:"reason" validate:"required,min=3"` // ör. "expired", "damaged packaging"
}

type WriteOffResponse struct {
	ID          uint   `json:"id"`
	BranchID    uint   `json:"branch_id"`
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
	UserID      uint   `json:"user_id"`
	Date        string `json:"date"`
	Quantity    int    `json:"quantity"`
	Reason      string `json:"reason"`
	Stock       int    `json:"stock"` // düşümden sonraki stok, listelemede 0
	CreatedAt   string `json:"created_at"`
}

func newWriteOffResponse(w *models.WriteOff) WriteOffResponse {
	return WriteOffResponse{
		ID:          w.ID,
		BranchID:    w.BranchID,
		ProductID:   w.ProductID,
		ProductName: w.ProductName,
		UserID:      w.UserID,
		Date:        w.Date.Format(dateLayout),
		Quantity:    w.Quantity,
		Reason:      w.Reason,
		CreatedAt:   w.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// POST /api/inventory/:id/write-offs
func CreateWriteOffHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		p, err := loadVisibleProduct(c, user)
		if err != nil {
			return err
		}

		var body CreateWriteOffRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		body.Reason = strings.TrimSpace(body.Reason)
		body.Date = strings.TrimSpace(body.Date)
		if err := validate.Struct(&body); err != nil {
			return err
		}

		date := time.Now()
		if body.Date != "" {
			date, _ = time.ParseInLocation(dateLayout, body.Date, time.Local)
		}

		entry := models.WriteOff{
			BranchID:    p.BranchID,
			ProductID:   p.ID,
			ProductName: p.Name,
			UserID:      user.ID,
			Date:        date,
			Quantity:    body.Quantity,
			Reason:      body.Reason,
		}

		// Kayıt ve stok düşümü birlikte
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			return tx.Model(&models.Product{}).Where("id = ?", p.ID).
				UpdateColumn("stock", gorm.Expr("CASE WHEN stock >= ? THEN stock - ? ELSE 0 END", body.Quantity, body.Quantity)).
				Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Write-off could not be recorded")
		}

		var fresh models.Product
		if err := database.DB.First(&fresh, p.ID).Error; err != nil {
			return err
		}

		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    &entry.BranchID,
			UserID:      user.ID,
			UserName:    user.Name,
			EntityType:  entityWriteOff,
			EntityID:    entry.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Write-off: %s x%d (%s)", p.Name, entry.Quantity, entry.Reason),
			Before:      audit.SnapshotProduct(p),
			After:       audit.SnapshotProduct(&fresh),
		})

		res := newWriteOffResponse(&entry)
		res.Stock = fresh.Stock
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// GET /api/inventory/write-offs?branch_id=&from=&to=
func ListWriteOffsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		vis, err := scope.FromQuery(c, user)
		if err != nil {
			return err
		}

		dbq := vis.Apply(database.DB.Model(&models.WriteOff{}), "branch_id")
		from, to, err := dayRange(c.Query("from"), c.Query("to"))
		if err != nil {
			return err
		}
		if from != nil {
			dbq = dbq.Where("date >= ?", *from)
		}
		if to != nil {
			dbq = dbq.Where("date < ?", *to)
		}

		var entries []models.WriteOff
		if err := dbq.Order("date DESC, id DESC").Find(&entries).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Write-offs could not be listed")
		}

		resp := make([]WriteOffResponse, 0, len(entries))
		for i := range entries {
			resp = append(resp, newWriteOffResponse(&entries[i]))
		}
		return c.JSON(resp)
	}
}

// dayRange turns from/to (YYYY-MM-DD, server local time) into [from, to+1 day).
func dayRange(from, to string) (start, end *time.Time, err error) {
	if from != "" {
		d, err := time.ParseInLocation(dateLayout, from, time.Local)
		if err != nil {
			return nil, nil, fiber.NewError(fiber.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		start = &d
	}
	if to != "" {
		d, err := time.ParseInLocation(dateLayout, to, time.Local)
		if err != nil {
			return nil, nil, fiber.NewError(fiber.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		d = d.AddDate(0, 0, 1)
		end = &d
	}
	return start, end, nil
}
