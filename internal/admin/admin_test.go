package admin

import (
	"fmt"
	"testing"

	"nexile-backend/internal/auth"
	"nexile-backend/internal/models"
	"nexile-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
)

func newApp(u *models.User) *fiber.App {
	app := fiber.New()
	app.Use(testutil.As(u))
	app.Get("/branches", ListBranchesHandler())
	app.Get("/branches/:id", GetBranchHandler())
	app.Post("/branches", CreateBranchHandler())
	app.Put("/branches/:id", UpdateBranchHandler())
	app.Get("/admin/users", ListUsersHandler())
	app.Put("/admin/users/:id/branches", SetManagedBranchesHandler())
	return app
}

func TestCreateBranchResolvesExisting(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.User(t, db, models.RoleOwner)
	app := newApp(owner)

	var first, second BranchResponse
	testutil.Decode(t, testutil.Do(t, app, "POST", "/branches", map[string]any{"name": "Downtown Pharmacy"}, ""),
		fiber.StatusCreated, &first)
	if first.Location != "HQ" {
		t.Fatalf("location = %q, want HQ default", first.Location)
	}
	testutil.Decode(t, testutil.Do(t, app, "POST", "/branches", map[string]any{"name": "  downtown   PHARMACY "}, ""),
		fiber.StatusOK, &second)
	if second.ID != first.ID {
		t.Fatalf("duplicate branch created: %d vs %d", second.ID, first.ID)
	}
	testutil.Decode(t, testutil.Do(t, app, "POST", "/branches", map[string]any{"name": ""}, ""),
		fiber.StatusBadRequest, nil)
}

func TestBranchVisibility(t *testing.T) {
	db := testutil.NewDB(t)
	b1 := testutil.Branch(t, db, "Central")
	b2 := testutil.Branch(t, db, "North")
	testutil.Branch(t, db, "South")
	owner := testutil.User(t, db, models.RoleOwner)
	manager := testutil.User(t, db, models.RoleManager, b1.ID, b2.ID)
	pharmacist := testutil.User(t, db, models.RolePharmacist, b2.ID)

	count := func(u *models.User) int {
		var list []BranchResponse
		testutil.Decode(t, testutil.Do(t, newApp(u), "GET", "/branches", nil, ""), fiber.StatusOK, &list)
		return len(list)
	}
	if got := count(owner); got != 3 {
		t.Fatalf("owner sees %d", got)
	}
	if got := count(manager); got != 2 {
		t.Fatalf("manager sees %d", got)
	}
	if got := count(pharmacist); got != 1 {
		t.Fatalf("pharmacist sees %d", got)
	}

	testutil.Decode(t, testutil.Do(t, newApp(pharmacist), "GET", fmt.Sprintf("/branches/%d", b1.ID), nil, ""),
		fiber.StatusNotFound, nil)
}

func TestUpdateBranchNameClash(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.User(t, db, models.RoleOwner)
	app := newApp(owner)

	var a, b BranchResponse
	testutil.Decode(t, testutil.Do(t, app, "POST", "/branches", map[string]any{"name": "Central"}, ""), fiber.StatusCreated, &a)
	testutil.Decode(t, testutil.Do(t, app, "POST", "/branches", map[string]any{"name": "North"}, ""), fiber.StatusCreated, &b)

	path := fmt.Sprintf("/branches/%d", b.ID)
	testutil.Decode(t, testutil.Do(t, app, "PUT", path, map[string]any{"name": "CENTRAL"}, ""), fiber.StatusConflict, nil)

	var updated BranchResponse
	testutil.Decode(t, testutil.Do(t, app, "PUT", path, map[string]any{"name": "North Side", "location": "Harbor"}, ""),
		fiber.StatusOK, &updated)
	if updated.Name != "North Side" || updated.Location != "Harbor" {
		t.Fatalf("updated = %+v", updated)
	}
}

func TestSetManagedBranches(t *testing.T) {
	db := testutil.NewDB(t)
	b1 := testutil.Branch(t, db, "Central")
	b2 := testutil.Branch(t, db, "North")
	owner := testutil.User(t, db, models.RoleOwner)
	manager := testutil.User(t, db, models.RoleManager, b1.ID)
	pharmacist := testutil.User(t, db, models.RolePharmacist, b1.ID)
	app := newApp(owner)

	path := fmt.Sprintf("/admin/users/%d/branches", manager.ID)
	var out auth.UserResponse
	testutil.Decode(t, testutil.Do(t, app, "PUT", path, map[string]any{"branch_ids": []uint{b2.ID, b1.ID, b2.ID}}, ""),
		fiber.StatusOK, &out)
	if len(out.ManagedBranchIDs) != 2 {
		t.Fatalf("managed = %v, want two distinct ids", out.ManagedBranchIDs)
	}

	testutil.Decode(t, testutil.Do(t, app, "PUT", path, map[string]any{"branch_ids": []uint{9999}}, ""),
		fiber.StatusBadRequest, nil)
	testutil.Decode(t, testutil.Do(t, app, "PUT", fmt.Sprintf("/admin/users/%d/branches", pharmacist.ID),
		map[string]any{"branch_ids": []uint{b1.ID}}, ""), fiber.StatusBadRequest, nil)

	var rows int64
	db.Model(&models.ManagedBranch{}).Where("user_id = ?", manager.ID).Count(&rows)
	if rows != 2 {
		t.Fatalf("managed rows = %d", rows)
	}

	var users []auth.UserResponse
	testutil.Decode(t, testutil.Do(t, app, "GET", "/admin/users?role=MANAGER", nil, ""), fiber.StatusOK, &users)
	if len(users) != 1 || users[0].ID != manager.ID {
		t.Fatalf("users = %+v", users)
	}
}
