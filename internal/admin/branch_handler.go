package admin

import (
	"errors"
	"fmt"
	"strings"

	"nexile-backend/internal/audit"
	"nexile-backend/internal/auth"
	"nexile-backend/internal/branch"
	"nexile-backend/internal/database"
	"nexile-backend/internal/models"
	"nexile-backend/internal/scope"
	"nexile-backend/internal/validate"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type BranchResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	CreatedAt string `json:"created_at"`
}

type CreateBranchRequest struct {
	Name     string `json:"name" validate:"required"`
	Location string `json:"location"`
}

type UpdateBranchRequest struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
}

func newBranchResponse(b *models.Branch) BranchResponse {
	return BranchResponse{
		ID:        b.ID,
		Name:      b.Name,
		Location:  b.Location,
		CreatedAt: b.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ----------------------------------------
// ŞUBELER
// ----------------------------------------

// GET /api/branches
func ListBranchesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		vis, err := scope.Resolve(user, nil)
		if err != nil {
			return scope.HTTPError(err)
		}

		var branches []models.Branch
		if err := vis.Apply(database.DB.Model(&models.Branch{}), "id").Order("name asc").Find(&branches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Branches could not be listed")
		}

		res := make([]BranchResponse, 0, len(branches))
		for i := range branches {
			res = append(res, newBranchResponse(&branches[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/branches/:id
func GetBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid branch id")
		}
		vis, err := scope.Resolve(user, nil)
		if err != nil {
			return scope.HTTPError(err)
		}
		if !vis.Contains(uint(id)) {
			return fiber.NewError(fiber.StatusNotFound, "Branch not found")
		}

		var b models.Branch
		if err := database.DB.First(&b, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Branch not found")
		}
		return c.JSON(newBranchResponse(&b))
	}
}

// POST /api/branches (sadece OWNER). Aynı isimde şube varsa onu döner.
func CreateBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var body CreateBranchRequest
		if err := validate.Body(c, &body); err != nil {
			return err
		}
		location := strings.TrimSpace(body.Location)
		if location == "" {
			location = "HQ"
		}

		b, created, err := branch.FindOrCreate(database.DB, body.Name, location)
		if err != nil {
			if errors.Is(err, branch.ErrEmptyName) {
				return fiber.NewError(fiber.StatusBadRequest, "Branch name must not be empty")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Branch could not be created")
		}
		if !created {
			return c.JSON(newBranchResponse(b))
		}

		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    &b.ID,
			UserID:      user.ID,
			UserName:    user.Name,
			EntityType:  models.EntityBranch,
			EntityID:    b.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Branch created: %s", b.Name),
			After:       newBranchResponse(b),
		})
		return c.Status(fiber.StatusCreated).JSON(newBranchResponse(b))
	}
}

// PUT /api/branches/:id (sadece OWNER)
func UpdateBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid branch id")
		}

		var b models.Branch
		if err := database.DB.First(&b, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Branch not found")
		}
		before := newBranchResponse(&b)

		var body UpdateBranchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Name != nil {
			name := strings.Join(strings.Fields(*body.Name), " ")
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Branch name must not be empty")
			}
			key := branch.Key(name)
			var clash int64
			if err := database.DB.Model(&models.Branch{}).Where("name_key = ? AND id <> ?", key, b.ID).Count(&clash).Error; err != nil {
				return err
			}
			if clash > 0 {
				return fiber.NewError(fiber.StatusConflict, "Another branch already uses this name")
			}
			b.Name, b.NameKey = name, key
		}
		if body.Location != nil {
			b.Location = strings.TrimSpace(*body.Location)
		}

		if err := database.DB.Save(&b).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fiber.NewError(fiber.StatusConflict, "Another branch already uses this name")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Branch could not be updated")
		}

		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    &b.ID,
			UserID:      user.ID,
			UserName:    user.Name,
			EntityType:  models.EntityBranch,
			EntityID:    b.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Branch updated: %s", b.Name),
			Before:      before,
			After:       newBranchResponse(&b),
		})
		return c.JSON(newBranchResponse(&b))
	}
}
