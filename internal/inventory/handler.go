// Package inventory serves branch-scoped product CRUD, barcode lookup and XLSX import.
package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"nexile-backend/internal/audit"
	"nexile-backend/internal/auth"
	"nexile-backend/internal/config"
	"nexile-backend/internal/database"
	"nexile-backend/internal/models"
	"nexile-backend/internal/scope"
	"nexile-backend/internal/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateProductRequest struct {
	ProductInput
	BranchID *uint `json:"branch_id"`
}

type UpdateProductRequest struct {
	Name          *string          `json:"name"`
	Category      *string          `json:"category"`
	Barcode       *string          `json:"barcode"`
	BatchNumber   *string          `json:"batch_number"`
	ExpiryDate    *string          `json:"expiry_date"`
	CostPrice     *decimal.Decimal `json:"cost_price"`
	SellingPrice  *decimal.Decimal `json:"selling_price"`
	Stock         *int             `json:"stock"`
	MinStockLevel *int             `json:"min_stock_level"`
}

// loadVisibleProduct returns 404 for products outside the caller's branches too.
func loadVisibleProduct(c *fiber.Ctx, user *models.User) (*models.Product, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid product id")
	}

	var p models.Product
	if err := database.DB.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Product not found")
		}
		return nil, err
	}

	vis, err := scope.Resolve(user, nil)
	if err != nil {
		return nil, scope.HTTPError(err)
	}
	if !vis.Contains(p.BranchID) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Product not found")
	}
	return &p, nil
}

// GET /api/inventory?branch_id=&q=&category=&barcode=&low_stock=true
func ListProductsHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		vis, err := scope.FromQuery(c, user)
		if err != nil {
			return err
		}

		dbq := vis.Apply(database.DB.Model(&models.Product{}), "branch_id")

		if q := strings.TrimSpace(c.Query("q")); q != "" {
			dbq = dbq.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
		}
		if category := strings.TrimSpace(c.Query("category")); category != "" {
			dbq = dbq.Where("category = ?", category)
		}
		if barcode := strings.TrimSpace(c.Query("barcode")); barcode != "" {
			dbq = dbq.Where("barcode = ?", barcode)
		}
		if c.QueryBool("low_stock") {
			dbq = dbq.Where("stock <= min_stock_level")
		}

		var products []models.Product
		if err := dbq.Order("name asc, id asc").Find(&products).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Products could not be listed")
		}

		now := time.Now()
		res := make([]ProductResponse, 0, len(products))
		for i := range products {
			res = append(res, NewProductResponse(&products[i], now, cfg.ExpiryWarningDays))
		}
		return c.JSON(res)
	}
}

// GET /api/inventory/:id
func GetProductHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		p, err := loadVisibleProduct(c, user)
		if err != nil {
			return err
		}
		return c.JSON(NewProductResponse(p, time.Now(), cfg.ExpiryWarningDays))
	}
}

// POST /api/inventory
func CreateProductHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var body CreateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		body.normalize()
		if err := validate.Struct(&body); err != nil {
			return err
		}
		if msg := checkPrices(body.CostPrice, body.SellingPrice); msg != "" {
			return fiber.NewError(fiber.StatusBadRequest, msg)
		}

		branchID, err := scope.Target(user, body.BranchID)
		if err != nil {
			return scope.HTTPError(err)
		}

		p, err := body.toModel(branchID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "expiry_date must be YYYY-MM-DD")
		}
		if err := database.DB.Create(&p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Product could not be created")
		}

		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    &p.BranchID,
			UserID:      user.ID,
			UserName:    user.Name,
			EntityType:  models.EntityProduct,
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Product created: %s (stock %d)", p.Name, p.Stock),
			After:       audit.SnapshotProduct(&p),
		})

		return c.Status(fiber.StatusCreated).JSON(NewProductResponse(&p, time.Now(), cfg.ExpiryWarningDays))
	}
}

// PUT /api/inventory/:id
func UpdateProductHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		p, err := loadVisibleProduct(c, user)
		if err != nil {
			return err
		}
		before := audit.SnapshotProduct(p)

		var body UpdateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		required := func(field string, v *string, dst *string) error {
			if v == nil {
				return nil
			}
			s := strings.TrimSpace(*v)
			if s == "" {
				return fiber.NewError(fiber.StatusBadRequest, field+" must not be empty")
			}
			*dst = s
			return nil
		}
		if err := required("name", body.Name, &p.Name); err != nil {
			return err
		}
		if err := required("category", body.Category, &p.Category); err != nil {
			return err
		}
		if err := required("batch_number", body.BatchNumber, &p.BatchNumber); err != nil {
			return err
		}
		if body.Barcode != nil {
			p.Barcode = strings.TrimSpace(*body.Barcode)
		}
		if body.ExpiryDate != nil {
			d, err := time.Parse(dateLayout, strings.TrimSpace(*body.ExpiryDate))
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "expiry_date must be YYYY-MM-DD")
			}
			p.ExpiryDate = d
		}
		if body.CostPrice != nil {
			p.CostPrice = *body.CostPrice
		}
		if body.SellingPrice != nil {
			p.SellingPrice = *body.SellingPrice
		}
		if msg := checkPrices(p.CostPrice, p.SellingPrice); msg != "" {
			return fiber.NewError(fiber.StatusBadRequest, msg)
		}
		if body.Stock != nil {
			if *body.Stock < 0 {
				return fiber.NewError(fiber.StatusBadRequest, "stock must not be negative")
			}
			p.Stock = *body.Stock
		}
		if body.MinStockLevel != nil {
			if *body.MinStockLevel < 0 {
				return fiber.NewError(fiber.StatusBadRequest, "min_stock_level must not be negative")
			}
			p.MinStockLevel = *body.MinStockLevel
		}

		if err := database.DB.Save(p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Product could not be updated")
		}

		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    &p.BranchID,
			UserID:      user.ID,
			UserName:    user.Name,
			EntityType:  models.EntityProduct,
			EntityID:    p.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Product updated: %s", p.Name),
			Before:      before,
			After:       audit.SnapshotProduct(p),
		})

		return c.JSON(NewProductResponse(p, time.Now(), cfg.ExpiryWarningDays))
	}
}

// DELETE /api/inventory/:id
func DeleteProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		p, err := loadVisibleProduct(c, user)
		if err != nil {
			return err
		}

		if err := database.DB.Delete(&models.Product{}, "id = ?", p.ID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Product could not be deleted")
		}

		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    &p.BranchID,
			UserID:      user.ID,
			UserName:    user.Name,
			EntityType:  models.EntityProduct,
			EntityID:    p.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Product deleted: %s", p.Name),
			Before:      audit.SnapshotProduct(p),
		})

		return c.SendStatus(fiber.StatusNoContent)
	}
}
