package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"

	"nexile-backend/internal/auth"
	"nexile-backend/internal/models"
	"nexile-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app, err := NewApp(Deps{Config: testutil.Config()})
	if err != nil {
		t.Fatal(err)
	}
	return app
}

func TestHealth(t *testing.T) {
	testutil.NewDB(t)
	var out map[string]string
	testutil.Decode(t, testutil.Do(t, newTestApp(t), "GET", "/api/health", nil, ""), fiber.StatusOK, &out)
	if out["status"] != "ok" {
		t.Fatalf("health = %v", out)
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	testutil.NewDB(t)
	app := newTestApp(t)

	register := map[string]any{
		"name": "Jane", "email": " Jane@Nexile.test ", "password": "secret1",
		"role": "PHARMACIST", "branch_name": "Central",
	}
	var reg auth.AuthResponse
	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/register", register, ""), fiber.StatusCreated, &reg)
	if reg.Token == "" || reg.User.Email != "jane@nexile.test" || reg.User.AssignedBranchID == nil {
		t.Fatalf("register = %+v", reg)
	}

	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/register", register, ""), fiber.StatusConflict, nil)

	var login auth.AuthResponse
	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/login", map[string]any{
		"email": "jane@nexile.test", "password": "secret1", "role": "PHARMACIST",
	}, ""), fiber.StatusOK, &login)

	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/login", map[string]any{
		"email": "jane@nexile.test", "password": "wrong", "role": "PHARMACIST",
	}, ""), fiber.StatusUnauthorized, nil)
	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/login", map[string]any{
		"email": "jane@nexile.test", "password": "secret1", "role": "OWNER",
	}, ""), fiber.StatusForbidden, nil)
	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/login", map[string]any{
		"email": "nobody@nexile.test", "password": "secret1", "role": "OWNER",
	}, ""), fiber.StatusNotFound, nil)

	var me auth.MeResponse
	testutil.Decode(t, testutil.Do(t, app, "GET", "/api/auth/me", nil, login.Token), fiber.StatusOK, &me)
	if me.ID != reg.User.ID || me.TrialExpired {
		t.Fatalf("me = %+v", me)
	}

	testutil.Decode(t, testutil.Do(t, app, "GET", "/api/auth/me", nil, ""), fiber.StatusUnauthorized, nil)
	testutil.Decode(t, testutil.Do(t, app, "GET", "/api/auth/me", nil, "garbage"), fiber.StatusUnauthorized, nil)
}

func TestManagerAccessCode(t *testing.T) {
	testutil.NewDB(t)
	app := newTestApp(t)

	body := map[string]any{
		"name": "Sam", "email": "sam@nexile.test", "password": "secret1",
		"role": "MANAGER", "access_code": "000000",
	}
	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/register", body, ""), fiber.StatusForbidden, nil)

	body["access_code"] = testutil.AccessCode
	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/register", body, ""), fiber.StatusCreated, nil)

	// Şifre doğru olsa da kod yanlışsa giriş reddedilir
	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/login", map[string]any{
		"email": "sam@nexile.test", "password": "secret1", "role": "MANAGER", "access_code": "111111",
	}, ""), fiber.StatusForbidden, nil)
	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/login", map[string]any{
		"email": "sam@nexile.test", "password": "secret1", "role": "MANAGER", "access_code": testutil.AccessCode,
	}, ""), fiber.StatusOK, nil)
}

func TestPharmacistWithoutBranchCannotLogin(t *testing.T) {
	db := testutil.NewDB(t)
	app := newTestApp(t)
	u := testutil.User(t, db, models.RolePharmacist)

	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/login", map[string]any{
		"email": u.Email, "password": testutil.Password, "role": "PHARMACIST",
	}, ""), fiber.StatusConflict, nil)
}

func TestPharmacistWithVanishedBranch(t *testing.T) {
	db := testutil.NewDB(t)
	app := newTestApp(t)
	b := testutil.Branch(t, db, "Closed Branch")
	u := testutil.User(t, db, models.RolePharmacist, b.ID)
	if err := db.Delete(&models.Branch{}, b.ID).Error; err != nil {
		t.Fatal(err)
	}

	var out map[string]string
	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/login", map[string]any{
		"email": u.Email, "password": testutil.Password, "role": "PHARMACIST",
	}, ""), fiber.StatusConflict, &out)
	if out["error"] != "Assigned branch no longer exists" {
		t.Fatalf("error = %q", out["error"])
	}

	testutil.Decode(t, testutil.Do(t, app, "POST", "/api/auth/login", map[string]any{
		"email": u.Email, "password": "not-the-password", "role": "PHARMACIST",
	}, ""), fiber.StatusUnauthorized, nil)
}

func TestConcurrentRegistrationSameEmail(t *testing.T) {
	testutil.NewDB(t)
	app := newTestApp(t)

	const n = 4
	statuses := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, _ := json.Marshal(map[string]any{
				"name": fmt.Sprintf("Twin %d", i), "email": "twin@nexile.test", "password": "secret1", "role": "OWNER",
			})
			req := httptest.NewRequest("POST", "/api/auth/register", bytes.NewReader(raw))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Error(err)
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}(i)
	}
	wg.Wait()
	close(statuses)

	created := 0
	for st := range statuses {
		switch st {
		case fiber.StatusCreated:
			created++
		case fiber.StatusConflict:
		default:
			t.Errorf("status = %d, want 201 or 409", st)
		}
	}
	if created != 1 {
		t.Fatalf("created = %d, want exactly one", created)
	}
}

func TestRoleGuards(t *testing.T) {
	db := testutil.NewDB(t)
	app := newTestApp(t)
	b := testutil.Branch(t, db, "Central")
	pharmacist := testutil.User(t, db, models.RolePharmacist, b.ID)
	manager := testutil.User(t, db, models.RoleManager, b.ID)
	owner := testutil.User(t, db, models.RoleOwner)

	cases := []struct {
		method, path string
		user         *models.User
		body         any
		want         int
	}{
		{"POST", "/api/branches", pharmacist, map[string]any{"name": "X"}, fiber.StatusForbidden},
		{"POST", "/api/branches", manager, map[string]any{"name": "X"}, fiber.StatusForbidden},
		{"POST", "/api/branches", owner, map[string]any{"name": "X"}, fiber.StatusCreated},
		{"GET", "/api/admin/users", manager, nil, fiber.StatusForbidden},
		{"GET", "/api/admin/users", owner, nil, fiber.StatusOK},
		{"GET", "/api/audit-logs", pharmacist, nil, fiber.StatusForbidden},
		{"GET", "/api/audit-logs", manager, nil, fiber.StatusOK},
		{"GET", "/api/inventory", pharmacist, nil, fiber.StatusOK},
		{"GET", "/api/dashboard/summary", pharmacist, nil, fiber.StatusOK},
		{"GET", "/api/reports/PROFIT_LOSS", pharmacist, nil, fiber.StatusForbidden},
		{"GET", fmt.Sprintf("/api/reports/PROFIT_LOSS?branch_id=%d", b.ID), manager, nil, fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s %s as %s", tc.method, tc.path, tc.user.Role), func(t *testing.T) {
			testutil.Decode(t, testutil.Do(t, app, tc.method, tc.path, tc.body, testutil.Token(t, tc.user)), tc.want, nil)
		})
	}
}

func TestUnknownErrorsRenderJSON(t *testing.T) {
	testutil.NewDB(t)
	app := newTestApp(t)

	var out map[string]string
	testutil.Decode(t, testutil.Do(t, app, "GET", "/api/inventory", nil, ""), fiber.StatusUnauthorized, &out)
	if out["error"] == "" {
		t.Fatalf("body = %v", out)
	}
}
