package inventory

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http/httptest"
	"testing"
	"time"

	"nexile-backend/internal/models"
	"nexile-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func decimalOf(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func newApp(u *models.User) *fiber.App {
	cfg := testutil.Config()
	app := fiber.New()
	app.Use(testutil.As(u))
	app.Get("/inventory", ListProductsHandler(cfg))
	app.Post("/inventory", CreateProductHandler(cfg))
	app.Post("/inventory/import", ImportProductsHandler())
	app.Get("/inventory/write-offs", ListWriteOffsHandler())
	app.Post("/inventory/:id/write-offs", CreateWriteOffHandler())
	app.Get("/inventory/:id", GetProductHandler(cfg))
	app.Put("/inventory/:id", UpdateProductHandler(cfg))
	app.Delete("/inventory/:id", DeleteProductHandler())
	return app
}

func TestDaysUntilAndStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	cases := []struct {
		expiry time.Time
		days   int
		status ExpiryStatus
	}{
		{day(2025, 6, 1), 0, ExpiryWarning},
		{day(2025, 5, 31), -1, ExpiryExpired},
		{day(2025, 7, 1), 30, ExpiryWarning},
		{day(2025, 7, 2), 31, ExpiryGood},
		{day(2026, 6, 1), 365, ExpiryGood},
	}
	for _, tc := range cases {
		if got := DaysUntil(tc.expiry, now); got != tc.days {
			t.Errorf("DaysUntil(%s) = %d, want %d", tc.expiry.Format(dateLayout), got, tc.days)
		}
		if got := StatusOf(tc.expiry, now, 30); got != tc.status {
			t.Errorf("StatusOf(%s) = %s, want %s", tc.expiry.Format(dateLayout), got, tc.status)
		}
	}
}

func TestProductCRUD(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.Branch(t, db, "Central")
	u := testutil.User(t, db, models.RolePharmacist, b.ID)
	app := newApp(u)

	var created ProductResponse
	testutil.Decode(t, testutil.Do(t, app, "POST", "/inventory", map[string]any{
		"name":          " Paracetamol 500mg ",
		"category":      "Pain Relief",
		"barcode":       "8901234567890",
		"batch_number":  "B-101",
		"expiry_date":   "2030-01-01",
		"cost_price":    "2.10",
		"selling_price": "5.50",
		"stock":         12,
	}, ""), fiber.StatusCreated, &created)

	if created.Name != "Paracetamol 500mg" || created.BranchID != b.ID {
		t.Fatalf("created = %+v", created)
	}
	if created.MinStockLevel != defaultMinStockLevel || created.LowStock {
		t.Fatalf("min level default: %+v", created)
	}

	var list []ProductResponse
	testutil.Decode(t, testutil.Do(t, app, "GET", "/inventory?barcode=8901234567890", nil, ""), fiber.StatusOK, &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("barcode lookup = %+v", list)
	}
	testutil.Decode(t, testutil.Do(t, app, "GET", "/inventory?q=PARA", nil, ""), fiber.StatusOK, &list)
	if len(list) != 1 {
		t.Fatalf("search = %+v", list)
	}

	path := fmt.Sprintf("/inventory/%d", created.ID)
	var updated ProductResponse
	testutil.Decode(t, testutil.Do(t, app, "PUT", path, map[string]any{"stock": 4}, ""), fiber.StatusOK, &updated)
	if updated.Stock != 4 || !updated.LowStock {
		t.Fatalf("updated = %+v", updated)
	}
	testutil.Decode(t, testutil.Do(t, app, "GET", "/inventory?low_stock=true", nil, ""), fiber.StatusOK, &list)
	if len(list) != 1 {
		t.Fatalf("low stock filter = %d", len(list))
	}
	testutil.Decode(t, testutil.Do(t, app, "PUT", path, map[string]any{"name": "  "}, ""), fiber.StatusBadRequest, nil)

	testutil.Decode(t, testutil.Do(t, app, "DELETE", path, nil, ""), fiber.StatusNoContent, nil)
	testutil.Decode(t, testutil.Do(t, app, "GET", path, nil, ""), fiber.StatusNotFound, nil)

	var logs int64
	db.Model(&models.AuditLog{}).Where("entity_type = ? AND entity_id = ?", models.EntityProduct, created.ID).Count(&logs)
	if logs != 3 {
		t.Fatalf("audit entries = %d, want create+update+delete", logs)
	}
}

func TestCreateProductValidation(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.Branch(t, db, "Central")
	app := newApp(testutil.User(t, db, models.RolePharmacist, b.ID))

	base := func() map[string]any {
		return map[string]any{
			"name": "X", "category": "C", "batch_number": "B", "expiry_date": "2030-01-01",
			"cost_price": "1", "selling_price": "2", "stock": 1,
		}
	}
	cases := map[string]func(m map[string]any){
		"missing name":   func(m map[string]any) { delete(m, "name") },
		"bad expiry":     func(m map[string]any) { m["expiry_date"] = "01/01/2030" },
		"negative stock": func(m map[string]any) { m["stock"] = -1 },
		"negative price": func(m map[string]any) { m["selling_price"] = "-2" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			body := base()
			mutate(body)
			testutil.Decode(t, testutil.Do(t, app, "POST", "/inventory", body, ""), fiber.StatusBadRequest, nil)
		})
	}
}

func TestProductsOutsideScopeAreHidden(t *testing.T) {
	db := testutil.NewDB(t)
	b1 := testutil.Branch(t, db, "Central")
	b2 := testutil.Branch(t, db, "North")
	b3 := testutil.Branch(t, db, "South")
	manager := testutil.User(t, db, models.RoleManager, b1.ID, b2.ID)
	testutil.Product(t, db, b1.ID, "A", 5, 1, "1.00")
	testutil.Product(t, db, b2.ID, "B", 5, 1, "1.00")
	foreign := testutil.Product(t, db, b3.ID, "C", 5, 1, "1.00")
	app := newApp(manager)

	var list []ProductResponse
	testutil.Decode(t, testutil.Do(t, app, "GET", "/inventory", nil, ""), fiber.StatusOK, &list)
	if len(list) != 2 {
		t.Fatalf("manager sees %d products, want 2", len(list))
	}
	testutil.Decode(t, testutil.Do(t, app, "GET", fmt.Sprintf("/inventory?branch_id=%d", b2.ID), nil, ""), fiber.StatusOK, &list)
	if len(list) != 1 || list[0].Name != "B" {
		t.Fatalf("branch filter = %+v", list)
	}
	testutil.Decode(t, testutil.Do(t, app, "GET", fmt.Sprintf("/inventory?branch_id=%d", b3.ID), nil, ""), fiber.StatusForbidden, nil)
	testutil.Decode(t, testutil.Do(t, app, "GET", fmt.Sprintf("/inventory/%d", foreign.ID), nil, ""), fiber.StatusNotFound, nil)
	testutil.Decode(t, testutil.Do(t, app, "DELETE", fmt.Sprintf("/inventory/%d", foreign.ID), nil, ""), fiber.StatusNotFound, nil)

	// İki şubeli müdür hedef şube seçmeli
	testutil.Decode(t, testutil.Do(t, app, "POST", "/inventory", map[string]any{
		"name": "X", "category": "C", "batch_number": "B", "expiry_date": "2030-01-01", "stock": 1,
	}, ""), fiber.StatusBadRequest, nil)
}

func TestWriteOff(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.Branch(t, db, "Central")
	u := testutil.User(t, db, models.RolePharmacist, b.ID)
	p := testutil.Product(t, db, b.ID, "Insulin", 6, 2, "20.00")
	app := newApp(u)

	path := fmt.Sprintf("/inventory/%d/write-offs", p.ID)
	var out WriteOffResponse
	testutil.Decode(t, testutil.Do(t, app, "POST", path, map[string]any{
		"quantity": 4, "reason": "expired", "date": "2025-02-01",
	}, ""), fiber.StatusCreated, &out)
	if out.Stock != 2 || out.ProductName != "Insulin" || out.Date != "2025-02-01" {
		t.Fatalf("write-off = %+v", out)
	}

	testutil.Decode(t, testutil.Do(t, app, "POST", path, map[string]any{"quantity": 0, "reason": "expired"}, ""),
		fiber.StatusBadRequest, nil)
	testutil.Decode(t, testutil.Do(t, app, "POST", path, map[string]any{"quantity": 1, "reason": ""}, ""),
		fiber.StatusBadRequest, nil)

	// Stok sıfırın altına inmez
	testutil.Decode(t, testutil.Do(t, app, "POST", path, map[string]any{"quantity": 10, "reason": "damaged"}, ""),
		fiber.StatusCreated, &out)
	if out.Stock != 0 {
		t.Fatalf("stock = %d, want 0", out.Stock)
	}

	var list []WriteOffResponse
	testutil.Decode(t, testutil.Do(t, app, "GET", "/inventory/write-offs?from=2025-02-01&to=2025-02-01", nil, ""), fiber.StatusOK, &list)
	if len(list) != 1 || list[0].Reason != "expired" {
		t.Fatalf("list = %+v", list)
	}
}

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestParseSheet(t *testing.T) {
	buf := workbook(t, [][]any{
		{"Pharmacy stock export"},
		{"Product Name", "Category", "Batch No", "Expiry Date", "Cost", "Price", "Qty", "Min Stock"},
		{"Paracetamol", "Pain Relief", "B1", "2030-01-01", "2.10", "$5.50", 120, 20},
		{"Cough Syrup", "", "", "12/31/2029", "", "7", 3, ""},
		{"", "", "", "", "", "", "", ""},
		{"Bad Date", "X", "B3", "someday", "1", "2", 1, 1},
		{"Bad Stock", "X", "B4", "2030-01-01", "1", "2", "many", 1},
	})

	sheet, inputs, rowNums, rowErrs, err := ParseSheet(buf)
	if err != nil {
		t.Fatal(err)
	}
	if sheet == "" {
		t.Fatal("sheet name empty")
	}
	if len(inputs) != 2 {
		t.Fatalf("inputs = %+v", inputs)
	}
	if rowNums[0] != 3 || rowNums[1] != 4 {
		t.Fatalf("row numbers = %v", rowNums)
	}

	first := inputs[0]
	if first.ExpiryDate != "2030-01-01" || !first.SellingPrice.Equal(decimalOf(t, "5.50")) ||
		first.Stock != 120 || first.MinStockLevel == nil || *first.MinStockLevel != 20 {
		t.Fatalf("first = %+v", first)
	}
	second := inputs[1]
	if second.Category != "General" || second.BatchNumber != "N/A" || second.ExpiryDate != "2029-12-31" || second.MinStockLevel != nil {
		t.Fatalf("second = %+v", second)
	}

	if len(rowErrs) != 2 || rowErrs[0].Row != 6 || rowErrs[1].Row != 7 {
		t.Fatalf("row errors = %+v", rowErrs)
	}
}

func TestParseSheetWithoutHeader(t *testing.T) {
	buf := workbook(t, [][]any{{"foo", "bar"}, {"1", "2"}})
	if _, _, _, _, err := ParseSheet(buf); err == nil {
		t.Fatal("expected missing header error")
	}
}

func TestImportProductsHandler(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.Branch(t, db, "Central")
	u := testutil.User(t, db, models.RolePharmacist, b.ID)
	app := newApp(u)

	buf := workbook(t, [][]any{
		{"Name", "Category", "Batch", "Expiry", "Cost", "Price", "Stock"},
		{"Paracetamol", "Pain Relief", "B1", "2030-01-01", "2.10", "5.50", 120},
		{"Broken", "X", "B2", "never", "1", "2", 1},
	})

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", "stock.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/inventory/import", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}

	var res ImportResult
	testutil.Decode(t, resp, fiber.StatusOK, &res)
	if res.Created != 1 || res.Skipped != 1 || len(res.Errors) != 1 || res.Errors[0].Row != 3 {
		t.Fatalf("result = %+v", res)
	}

	var p models.Product
	if err := db.Where("name = ?", "Paracetamol").First(&p).Error; err != nil {
		t.Fatal(err)
	}
	if p.BranchID != b.ID || p.Stock != 120 {
		t.Fatalf("imported = %+v", p)
	}
}

func TestDayRangeUsesServerLocalTime(t *testing.T) {
	zone := time.FixedZone("UTC+10", 10*3600)
	prev := time.Local
	time.Local = zone
	t.Cleanup(func() { time.Local = prev })

	from, to, err := dayRange("2025-02-01", "2025-02-01")
	if err != nil {
		t.Fatal(err)
	}
	if !from.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, zone)) || !to.Equal(time.Date(2025, 2, 2, 0, 0, 0, 0, zone)) {
		t.Fatalf("range = %s .. %s", from, to)
	}

	from, to, err = dayRange("", "")
	if err != nil || from != nil || to != nil {
		t.Fatalf("empty range = %v %v %v", from, to, err)
	}
	if _, _, err := dayRange("01/02/2025", ""); err == nil {
		t.Fatal("expected error for bad date")
	}
}
