package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"nexile-backend/internal/branch"
	"nexile-backend/internal/config"
	"nexile-backend/internal/database"
	"nexile-backend/internal/models"
	"nexile-backend/internal/validate"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterRequest struct {
	Name       string          `json:"name" validate:"required"`
	Email      string          `json:"email" validate:"required,email"`
	Password   string          `json:"password" validate:"required,min=6"`
	Role       models.UserRole `json:"role" validate:"required,oneof=OWNER MANAGER PHARMACIST"`
	BranchName string          `json:"branch_name"`
	AccessCode string          `json:"access_code"`
}

type LoginRequest struct {
	Email      string          `json:"email" validate:"required"`
	Password   string          `json:"password" validate:"required"`
	Role       models.UserRole `json:"role" validate:"required,oneof=OWNER MANAGER PHARMACIST"`
	AccessCode string          `json:"access_code"`
}

type UserResponse struct {
	ID               uint            `json:"id"`
	Name             string          `json:"name"`
	Email            string          `json:"email"`
	Role             models.UserRole `json:"role"`
	AssignedBranchID *uint           `json:"assigned_branch_id,omitempty"`
	ManagedBranchIDs []uint          `json:"managed_branch_ids"`
	CreatedAt        time.Time       `json:"created_at"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Role:             u.Role,
		AssignedBranchID: u.AssignedBranchID,
		ManagedBranchIDs: u.ManagedBranchIDs(),
		CreatedAt:        u.CreatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func accessCodeMatches(cfg *config.Config, code string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(cfg.ManagerAccessCode)) == 1
}

// POST /api/auth/register
func RegisterHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterRequest
		if err := validate.Body(c, &body); err != nil {
			return err
		}

		body.Name = strings.TrimSpace(body.Name)
		body.Email = normalizeEmail(body.Email)
		log := zap.L().With(zap.String("email", body.Email), zap.String("role", string(body.Role)))

		// Müdür kodu her şeyden önce kontrol edilir
		if body.Role == models.RoleManager && !accessCodeMatches(cfg, body.AccessCode) {
			log.Warn("register rejected: invalid manager access code")
			return fiber.NewError(fiber.StatusForbidden, "Invalid Manager Access Code")
		}
		if body.Role == models.RolePharmacist && strings.TrimSpace(body.BranchName) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Branch name required")
		}

		var count int64
		if err := database.DB.Model(&models.User{}).Where("email = ?", body.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			log.Warn("register rejected: email already registered")
			return fiber.NewError(fiber.StatusConflict, "Email already registered. Please log in.")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Password could not be hashed")
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         body.Role,
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			switch body.Role {
			case models.RolePharmacist:
				b, created, err := branch.FindOrCreate(tx, body.BranchName, "New Location")
				if err != nil {
					return err
				}
				if created {
					log.Info("created branch for pharmacist", zap.String("branch", b.Name))
				}
				user.AssignedBranchID = &b.ID
			case models.RoleOwner:
				if strings.TrimSpace(body.BranchName) != "" {
					b, created, err := branch.FindOrCreate(tx, body.BranchName, "HQ")
					if err != nil {
						return err
					}
					if created {
						log.Info("owner created branch", zap.String("branch", b.Name))
					}
				}
			}
			return tx.Create(&user).Error
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Eşzamanlı kayıt unique index'e takıldı
			log.Warn("register rejected: email registered concurrently")
			return fiber.NewError(fiber.StatusConflict, "Email already registered. Please log in.")
		}
		if err != nil {
			log.Error("register failed", zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "User could not be created")
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.TokenTTL, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Token could not be created")
		}

		log.Info("user registered", zap.Uint("user_id", user.ID))
		return c.Status(fiber.StatusCreated).JSON(AuthResponse{Token: token, User: NewUserResponse(&user)})
	}
}

// POST /api/auth/login
func LoginHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := validate.Body(c, &body); err != nil {
			return err
		}

		body.Email = normalizeEmail(body.Email)
		log := zap.L().With(zap.String("email", body.Email), zap.String("role", string(body.Role)))

		// Yanlış kod, şifre doğru olsa bile 403
		if body.Role == models.RoleManager && !accessCodeMatches(cfg, body.AccessCode) {
			log.Warn("login rejected: invalid manager access code")
			return fiber.NewError(fiber.StatusForbidden, "Invalid Access Code")
		}

		var user models.User
		if err := database.DB.Preload("ManagedBranches").Where("email = ?", body.Email).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Warn("login rejected: unknown email")
				return fiber.NewError(fiber.StatusNotFound, "User not found. Please register first.")
			}
			return err
		}

		if user.Role != body.Role {
			log.Warn("login rejected: role mismatch", zap.String("registered_role", string(user.Role)))
			return fiber.NewError(fiber.StatusForbidden,
				fmt.Sprintf("Role mismatch. This email is registered as %s. Please switch to the %s tab.", user.Role, user.Role))
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			log.Warn("login rejected: invalid password")
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid password")
		}

		if user.Role == models.RolePharmacist {
			if user.AssignedBranchID == nil {
				return fiber.NewError(fiber.StatusConflict, "No branch is assigned to this pharmacist")
			}
			ok, err := branch.Exists(database.DB, *user.AssignedBranchID)
			if err != nil {
				return err
			}
			if !ok {
				log.Warn("login rejected: assigned branch missing", zap.Uint("branch_id", *user.AssignedBranchID))
				return fiber.NewError(fiber.StatusConflict, "Assigned branch no longer exists")
			}
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.TokenTTL, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Token could not be created")
		}

		log.Info("user logged in", zap.Uint("user_id", user.ID))
		return c.JSON(AuthResponse{Token: token, User: NewUserResponse(&user)})
	}
}

type MeResponse struct {
	UserResponse
	TrialEndsAt  time.Time `json:"trial_ends_at"`
	TrialExpired bool      `json:"trial_expired"`
}

// GET /api/auth/me
func MeHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := CurrentUser(c)
		if err != nil {
			return err
		}

		trialEnds := user.CreatedAt.AddDate(0, 0, cfg.TrialDays)
		return c.JSON(MeResponse{
			UserResponse: NewUserResponse(user),
			TrialEndsAt:  trialEnds,
			TrialExpired: time.Now().After(trialEnds),
		})
	}
}
