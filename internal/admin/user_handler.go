package admin

import (
	"fmt"
	"slices"

	"nexile-backend/internal/audit"
	"nexile-backend/internal/auth"
	"nexile-backend/internal/database"
	"nexile-backend/internal/models"
	"nexile-backend/internal/validate"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SetManagedBranchesRequest struct {
	BranchIDs []uint `json:"branch_ids" validate:"required,dive,gt=0"`
}

// GET /api/admin/users?role=MANAGER
func ListUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Preload("ManagedBranches").Model(&models.User{})
		if role := models.UserRole(c.Query("role")); role != "" {
			if !role.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "role must be OWNER, MANAGER or PHARMACIST")
			}
			dbq = dbq.Where("role = ?", role)
		}

		var users []models.User
		if err := dbq.Order("created_at DESC, id DESC").Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Users could not be listed")
		}

		res := make([]auth.UserResponse, 0, len(users))
		for i := range users {
			res = append(res, auth.NewUserResponse(&users[i]))
		}
		return c.JSON(res)
	}
}

// PUT /api/admin/users/:id/branches
// Müdürün yönettiği şubeleri tamamen değiştirir.
func SetManagedBranchesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid user id")
		}

		var body SetManagedBranchesRequest
		if err := validate.Body(c, &body); err != nil {
			return err
		}

		var target models.User
		if err := database.DB.Preload("ManagedBranches").First(&target, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		}
		if target.Role != models.RoleManager {
			return fiber.NewError(fiber.StatusBadRequest, "Only managers have managed branches")
		}

		ids := slices.Clone(body.BranchIDs)
		slices.Sort(ids)
		ids = slices.Compact(ids)

		var found int64
		if len(ids) > 0 {
			if err := database.DB.Model(&models.Branch{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
				return err
			}
		}
		if int(found) != len(ids) {
			return fiber.NewError(fiber.StatusBadRequest, "Unknown branch id in branch_ids")
		}

		before := target.ManagedBranchIDs()
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("user_id = ?", target.ID).Delete(&models.ManagedBranch{}).Error; err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			rows := make([]models.ManagedBranch, 0, len(ids))
			for _, bid := range ids {
				rows = append(rows, models.ManagedBranch{UserID: target.ID, BranchID: bid})
			}
			return tx.Create(&rows).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Managed branches could not be updated")
		}

		var updated models.User
		if err := database.DB.Preload("ManagedBranches").First(&updated, target.ID).Error; err != nil {
			return err
		}

		_ = audit.WriteLog(audit.LogOptions{
			UserID:      actor.ID,
			UserName:    actor.Name,
			EntityType:  models.EntityUser,
			EntityID:    target.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Managed branches of %s set to %v", target.Email, ids),
			Before:      fiber.Map{"managed_branch_ids": before},
			After:       fiber.Map{"managed_branch_ids": updated.ManagedBranchIDs()},
		})

		return c.JSON(auth.NewUserResponse(&updated))
	}
}
