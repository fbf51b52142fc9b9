// Package testutil sets up isolated in-memory databases and tokens for handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nexile-backend/internal/auth"
	"nexile-backend/internal/config"
	"nexile-backend/internal/database"
	"nexile-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	JWTSecret  = "test-secret-test-secret-test-secret-0123"
	AccessCode = "654321"
	Password   = "password"
)

// NewDB opens a private in-memory SQLite database, migrates it and installs it as
// database.DB for the duration of the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func Config() *config.Config {
	return &config.Config{
		HTTPPort:          "0",
		AppEnv:            "test",
		DatabaseDriver:    "sqlite",
		JWTSecret:         JWTSecret,
		TokenTTL:          time.Hour,
		CORSOrigins:       "*",
		ManagerAccessCode: AccessCode,
		AuthRateLimit:     "1000-M",
		TrialDays:         7,
		SalesAtomic:       true,
		ExpiryWarningDays: 30,
		ExpiryRiskDays:    90,
	}
}

func Branch(t testing.TB, db *gorm.DB, name string) *models.Branch {
	t.Helper()
	b := &models.Branch{Name: name, NameKey: fmt.Sprintf("key-%s-%s", name, uuid.NewString()), Location: "Test"}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("create branch: %v", err)
	}
	return b
}

func User(t testing.TB, db *gorm.DB, role models.UserRole, branchIDs ...uint) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	u := &models.User{
		Name:         string(role) + " user",
		Email:        fmt.Sprintf("%s-%s@nexile.test", role, uuid.NewString()[:8]),
		PasswordHash: string(hash),
		Role:         role,
	}
	switch role {
	case models.RolePharmacist:
		if len(branchIDs) > 0 {
			u.AssignedBranchID = &branchIDs[0]
		}
	case models.RoleManager:
		for _, id := range branchIDs {
			u.ManagedBranches = append(u.ManagedBranches, models.ManagedBranch{BranchID: id})
		}
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func Product(t testing.TB, db *gorm.DB, branchID uint, name string, stock, minLevel int, price string) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:          name,
		Category:      "Pain Relief",
		BatchNumber:   "B-" + name,
		ExpiryDate:    time.Now().AddDate(1, 0, 0).Truncate(24 * time.Hour),
		CostPrice:     decimal.RequireFromString(price).Div(decimal.NewFromInt(2)),
		SellingPrice:  decimal.RequireFromString(price),
		Stock:         stock,
		MinStockLevel: minLevel,
		BranchID:      branchID,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

// As authenticates every request of a test app as u, bypassing the bearer token.
func As(u *models.User) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserKey, u)
		c.Locals(auth.CtxUserIDKey, u.ID)
		c.Locals(auth.CtxUserRoleKey, u.Role)
		return c.Next()
	}
}

func Token(t testing.TB, u *models.User) string {
	t.Helper()
	tok, err := auth.GenerateToken(JWTSecret, time.Hour, u)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

// Do sends a JSON request to app. body may be nil; token may be empty.
func Do(t testing.TB, app *fiber.App, method, path string, body any, token string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// Decode reads a JSON response into dst and fails the test on a different status.
func Decode(t testing.TB, resp *http.Response, wantStatus int, dst any) {
	t.Helper()
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, wantStatus, raw)
	}
	if dst == nil {
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}
