package audit

import (
	"errors"
	"fmt"
	"testing"

	"nexile-backend/internal/models"
	"nexile-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func uintp(v uint) *uint { return &v }

func lastLog(t *testing.T, db *gorm.DB) models.AuditLog {
	t.Helper()
	var l models.AuditLog
	if err := db.Order("id desc").First(&l).Error; err != nil {
		t.Fatal(err)
	}
	return l
}

func TestWriteLogStoresSnapshots(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.Branch(t, db, "Central")
	p := testutil.Product(t, db, b.ID, "Paracetamol", 12, 10, "5.50")

	err := WriteLog(LogOptions{
		BranchID:    &b.ID,
		UserID:      7,
		UserName:    "John",
		EntityType:  models.EntityProduct,
		EntityID:    p.ID,
		Action:      models.AuditActionCreate,
		Description: "Created product Paracetamol",
		After:       SnapshotProduct(p),
	})
	if err != nil {
		t.Fatal(err)
	}

	l := lastLog(t, db)
	if l.BeforeData != "null" {
		t.Fatalf("before = %q, want null", l.BeforeData)
	}
	snap, err := decodeProduct(l.AfterData)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Name != "Paracetamol" || snap.Stock != 12 || !snap.SellingPrice.Equal(p.SellingPrice) {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestUndoCreateDeletesProduct(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.Branch(t, db, "Central")
	p := testutil.Product(t, db, b.ID, "Paracetamol", 12, 10, "5.50")
	_ = WriteLog(LogOptions{BranchID: &b.ID, EntityType: models.EntityProduct, EntityID: p.ID,
		Action: models.AuditActionCreate, Description: "Created", After: SnapshotProduct(p)})

	entry := lastLog(t, db)
	if err := UndoLog(&entry, 9, "Sarah"); err != nil {
		t.Fatal(err)
	}
	if err := db.First(&models.Product{}, p.ID).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("product still exists: %v", err)
	}
	if !entry.IsUndone || entry.UndoneBy == nil || *entry.UndoneBy != 9 {
		t.Fatalf("entry not marked: %+v", entry)
	}

	undo := lastLog(t, db)
	if undo.Action != models.AuditActionUndo || undo.Description != "Undone: Created" {
		t.Fatalf("undo entry = %+v", undo)
	}

	if err := UndoLog(&entry, 9, "Sarah"); !errors.Is(err, ErrAlreadyUndone) {
		t.Fatalf("second undo err = %v", err)
	}
	if err := UndoLog(&undo, 9, "Sarah"); !errors.Is(err, ErrNotUndoable) {
		t.Fatalf("undo of undo err = %v", err)
	}
}

func TestUndoUpdateRestoresBefore(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.Branch(t, db, "Central")
	p := testutil.Product(t, db, b.ID, "Paracetamol", 12, 10, "5.50")
	before := SnapshotProduct(p)

	db.Model(p).Updates(map[string]any{"name": "Paracetamol 500", "stock": 40})
	_ = WriteLog(LogOptions{BranchID: &b.ID, EntityType: models.EntityProduct, EntityID: p.ID,
		Action: models.AuditActionUpdate, Description: "Updated", Before: before, After: SnapshotProduct(p)})

	entry := lastLog(t, db)
	if err := UndoLog(&entry, 1, "Owner"); err != nil {
		t.Fatal(err)
	}
	var got models.Product
	db.First(&got, p.ID)
	if got.Name != "Paracetamol" || got.Stock != 12 {
		t.Fatalf("product = %+v, want restored", got)
	}
}

func sell(t *testing.T, db *gorm.DB, productID uint, qty int) {
	t.Helper()
	err := db.Model(&models.Product{}).Where("id = ?", productID).
		Update("stock", gorm.Expr("CASE WHEN stock >= ? THEN stock - ? ELSE 0 END", qty, qty)).Error
	if err != nil {
		t.Fatal(err)
	}
}

func TestUndoUpdateKeepsLaterSales(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.Branch(t, db, "Central")
	p := testutil.Product(t, db, b.ID, "Paracetamol", 12, 10, "5.50")
	before := SnapshotProduct(p)

	db.Model(p).Updates(map[string]any{"name": "Paracetamol 500"})
	_ = WriteLog(LogOptions{BranchID: &b.ID, EntityType: models.EntityProduct, EntityID: p.ID,
		Action: models.AuditActionUpdate, Description: "Renamed", Before: before, After: SnapshotProduct(p)})
	entry := lastLog(t, db)

	sell(t, db, p.ID, 5)
	if err := UndoLog(&entry, 1, "Owner"); err != nil {
		t.Fatal(err)
	}
	var got models.Product
	db.First(&got, p.ID)
	if got.Name != "Paracetamol" || got.Stock != 7 {
		t.Fatalf("product = %s/%d, want rename reverted and stock 7", got.Name, got.Stock)
	}
}

func TestUndoStockEditIsRelative(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.Branch(t, db, "Central")
	p := testutil.Product(t, db, b.ID, "Insulin", 10, 2, "20.00")
	before := SnapshotProduct(p)

	// 10 -> 30 restock, then 25 sold
	db.Model(p).Update("stock", 30)
	_ = WriteLog(LogOptions{BranchID: &b.ID, EntityType: models.EntityProduct, EntityID: p.ID,
		Action: models.AuditActionUpdate, Description: "Restocked", Before: before, After: SnapshotProduct(p)})
	entry := lastLog(t, db)
	sell(t, db, p.ID, 25)

	if err := UndoLog(&entry, 1, "Owner"); err != nil {
		t.Fatal(err)
	}
	var got models.Product
	db.First(&got, p.ID)
	if got.Stock != 0 {
		t.Fatalf("stock = %d, want 5-20 clamped to 0", got.Stock)
	}
}

func TestUndoStaleEntryIsRejected(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.Branch(t, db, "Central")
	p := testutil.Product(t, db, b.ID, "Paracetamol", 12, 10, "5.50")
	before := SnapshotProduct(p)
	db.Model(p).Update("stock", 20)
	_ = WriteLog(LogOptions{BranchID: &b.ID, EntityType: models.EntityProduct, EntityID: p.ID,
		Action: models.AuditActionUpdate, Description: "Updated", Before: before, After: SnapshotProduct(p)})

	first := lastLog(t, db)
	second := first // aynı kaydı eşzamanlı okuyan ikinci istek
	if err := UndoLog(&first, 1, "Owner"); err != nil {
		t.Fatal(err)
	}
	if err := UndoLog(&second, 2, "Manager"); !errors.Is(err, ErrAlreadyUndone) {
		t.Fatalf("stale undo err = %v", err)
	}

	var got models.Product
	db.First(&got, p.ID)
	if got.Stock != 12 {
		t.Fatalf("stock = %d, want single revert to 12", got.Stock)
	}
	var undos int64
	db.Model(&models.AuditLog{}).Where("action = ?", models.AuditActionUndo).Count(&undos)
	if undos != 1 {
		t.Fatalf("undo entries = %d", undos)
	}
}

func TestUndoDeleteRecreatesWithSameID(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.Branch(t, db, "Central")
	p := testutil.Product(t, db, b.ID, "Paracetamol", 12, 10, "5.50")
	before := SnapshotProduct(p)
	db.Delete(&models.Product{}, p.ID)
	_ = WriteLog(LogOptions{BranchID: &b.ID, EntityType: models.EntityProduct, EntityID: p.ID,
		Action: models.AuditActionDelete, Description: "Deleted", Before: before})

	entry := lastLog(t, db)
	if err := UndoLog(&entry, 1, "Owner"); err != nil {
		t.Fatal(err)
	}
	var got models.Product
	if err := db.First(&got, p.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.Name != "Paracetamol" || got.BranchID != b.ID {
		t.Fatalf("recreated = %+v", got)
	}
}

func TestUndoRejectsNonProductEntries(t *testing.T) {
	db := testutil.NewDB(t)
	_ = WriteLog(LogOptions{EntityType: models.EntityTransaction, EntityID: 1, Action: models.AuditActionCreate})
	entry := lastLog(t, db)
	if err := UndoLog(&entry, 1, "Owner"); !errors.Is(err, ErrNotUndoable) {
		t.Fatalf("err = %v", err)
	}
}

func TestAuditHandlersAreScoped(t *testing.T) {
	db := testutil.NewDB(t)
	b1 := testutil.Branch(t, db, "Central")
	b2 := testutil.Branch(t, db, "North")
	manager := testutil.User(t, db, models.RoleManager, b1.ID)
	owner := testutil.User(t, db, models.RoleOwner)
	p1 := testutil.Product(t, db, b1.ID, "A", 5, 1, "1.00")
	p2 := testutil.Product(t, db, b2.ID, "B", 5, 1, "1.00")

	_ = WriteLog(LogOptions{BranchID: uintp(b1.ID), EntityType: models.EntityProduct, EntityID: p1.ID,
		Action: models.AuditActionCreate, After: SnapshotProduct(p1)})
	_ = WriteLog(LogOptions{BranchID: uintp(b2.ID), EntityType: models.EntityProduct, EntityID: p2.ID,
		Action: models.AuditActionCreate, After: SnapshotProduct(p2)})
	foreign := lastLog(t, db)
	_ = WriteLog(LogOptions{EntityType: models.EntityUser, EntityID: manager.ID, Action: models.AuditActionUpdate})

	newApp := func(u *models.User) *fiber.App {
		app := fiber.New()
		app.Use(testutil.As(u))
		app.Get("/audit-logs", ListAuditLogsHandler())
		app.Post("/audit-logs/:id/undo", UndoAuditLogHandler())
		return app
	}

	var logs []AuditLogResponse
	testutil.Decode(t, testutil.Do(t, newApp(manager), "GET", "/audit-logs", nil, ""), fiber.StatusOK, &logs)
	if len(logs) != 1 || logs[0].EntityID != p1.ID {
		t.Fatalf("manager sees %+v", logs)
	}
	testutil.Decode(t, testutil.Do(t, newApp(owner), "GET", "/audit-logs", nil, ""), fiber.StatusOK, &logs)
	if len(logs) != 3 {
		t.Fatalf("owner sees %d entries, want 3", len(logs))
	}
	testutil.Decode(t, testutil.Do(t, newApp(owner), "GET", "/audit-logs?entity_type=product&limit=1", nil, ""), fiber.StatusOK, &logs)
	if len(logs) != 1 {
		t.Fatalf("limit ignored: %d", len(logs))
	}

	path := fmt.Sprintf("/audit-logs/%d/undo", foreign.ID)
	testutil.Decode(t, testutil.Do(t, newApp(manager), "POST", path, nil, ""), fiber.StatusForbidden, nil)
	testutil.Decode(t, testutil.Do(t, newApp(owner), "POST", path, nil, ""), fiber.StatusOK, nil)
	testutil.Decode(t, testutil.Do(t, newApp(owner), "POST", path, nil, ""), fiber.StatusConflict, nil)
}
