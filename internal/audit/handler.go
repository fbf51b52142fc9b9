package audit

import (
	"errors"
	"fmt"

	"nexile-backend/internal/auth"
	"nexile-backend/internal/database"
	"nexile-backend/internal/models"
	"nexile-backend/internal/scope"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	BranchID    *uint              `json:"branch_id"`
	UserID      uint               `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	IsUndone    bool               `json:"is_undone"`
	UndoneBy    *uint              `json:"undone_by"`
	UndoneAt    *string            `json:"undone_at"`
}

func newAuditLogResponse(log models.AuditLog) AuditLogResponse {
	var undoneAt *string
	if log.UndoneAt != nil {
		formatted := log.UndoneAt.Format("2006-01-02 15:04:05")
		undoneAt = &formatted
	}
	return AuditLogResponse{
		ID:          log.ID,
		CreatedAt:   log.CreatedAt.Format("2006-01-02 15:04:05"),
		BranchID:    log.BranchID,
		UserID:      log.UserID,
		UserName:    log.UserName,
		EntityType:  log.EntityType,
		EntityID:    log.EntityID,
		Action:      log.Action,
		Description: log.Description,
		IsUndone:    log.IsUndone,
		UndoneBy:    log.UndoneBy,
		UndoneAt:    undoneAt,
	}
}

// GET /api/audit-logs?entity_type=product&entity_id=1&branch_id=1&user_id=2&limit=100
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		vis, err := scope.FromQuery(c, user)
		if err != nil {
			return err
		}

		dbq := database.DB.Model(&models.AuditLog{})
		if !vis.IsAll() {
			// Şubesiz kayıtları (kullanıcı işlemleri) sadece sahip görür
			dbq = vis.Apply(dbq, "branch_id")
		}

		if uid := c.QueryInt("user_id"); uid > 0 {
			dbq = dbq.Where("user_id = ?", uid)
		}
		if entityType := c.Query("entity_type"); entityType != "" {
			dbq = dbq.Where("entity_type = ?", entityType)
		}
		if eid := c.QueryInt("entity_id"); eid > 0 {
			dbq = dbq.Where("entity_id = ?", eid)
		}

		limit := c.QueryInt("limit", 200)
		if limit <= 0 || limit > 1000 {
			limit = 200
		}

		var logs []models.AuditLog
		if err := dbq.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Audit logs could not be listed")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, log := range logs {
			resp = append(resp, newAuditLogResponse(log))
		}
		return c.JSON(resp)
	}
}

// POST /api/audit-logs/:id/undo
func UndoAuditLogHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		logID, err := c.ParamsInt("id")
		if err != nil || logID <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid log id")
		}

		var entry models.AuditLog
		if err := database.DB.First(&entry, "id = ?", logID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Log not found")
		}

		// Müdür sadece yönettiği şubelerdeki kayıtları geri alabilir
		vis, err := scope.Resolve(user, nil)
		if err != nil {
			return scope.HTTPError(err)
		}
		if !vis.IsAll() && (entry.BranchID == nil || !vis.Contains(*entry.BranchID)) {
			return fiber.NewError(fiber.StatusForbidden, "You can only undo entries of your own branches")
		}

		if err := UndoLog(&entry, user.ID, user.Name); err != nil {
			switch {
			case errors.Is(err, ErrAlreadyUndone), errors.Is(err, ErrNotUndoable):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			default:
				zap.L().Warn("undo failed", zap.Int("log_id", logID), zap.Error(err))
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}

		return c.JSON(fiber.Map{
			"message": fmt.Sprintf("Entry %d undone", entry.ID),
			"log":     newAuditLogResponse(entry),
		})
	}
}
