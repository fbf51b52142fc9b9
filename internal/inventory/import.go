package inventory

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"nexile-backend/internal/audit"
	"nexile-backend/internal/auth"
	"nexile-backend/internal/database"
	"nexile-backend/internal/models"
	"nexile-backend/internal/scope"
	"nexile-backend/internal/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Başlık eşleştirmesi: küçük harfli, boşluksuz başlık -> alan
var headerAliases = map[string]string{
	"name":          "name",
	"productname":   "name",
	"product":       "name",
	"medicine":      "name",
	"category":      "category",
	"barcode":       "barcode",
	"batch":         "batch_number",
	"batchnumber":   "batch_number",
	"batchno":       "batch_number",
	"lot":           "batch_number",
	"expiry":        "expiry_date",
	"expirydate":    "expiry_date",
	"expiration":    "expiry_date",
	"cost":          "cost_price",
	"costprice":     "cost_price",
	"price":         "selling_price",
	"sellingprice":  "selling_price",
	"stock":         "stock",
	"quantity":      "stock",
	"qty":           "stock",
	"minstock":      "min_stock_level",
	"minstocklevel": "min_stock_level",
	"reorderlevel":  "min_stock_level",
}

var expiryLayouts = []string{"2006-01-02", "01-02-06", "1/2/2006", "01/02/2006", "02.01.2006", "2006/01/02"}

type ImportRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Sheet   string           `json:"sheet"`
	Created int              `json:"created"`
	Skipped int              `json:"skipped"`
	Errors  []ImportRowError `json:"errors"`
}

// ParseSheet reads the first sheet of an XLSX workbook into product inputs. The header
// row is the first row naming a product name column; rows above it are ignored. Rows
// that cannot be parsed are reported with their 1-based sheet row number.
func ParseSheet(r io.Reader) (sheet string, inputs []ProductInput, rowNums []int, rowErrs []ImportRowError, err error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", nil, nil, nil, fmt.Errorf("workbook could not be read: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, nil, nil, fmt.Errorf("workbook has no sheets")
	}
	sheet = sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return sheet, nil, nil, nil, fmt.Errorf("sheet could not be read: %w", err)
	}

	headerIdx := -1
	var cols map[string]int
	for i, row := range rows {
		m := mapHeader(row)
		if _, ok := m["name"]; ok {
			headerIdx, cols = i, m
			break
		}
	}
	if headerIdx < 0 {
		return sheet, nil, nil, nil, fmt.Errorf("no header row with a product name column")
	}

	cell := func(row []string, field string) string {
		idx, ok := cols[field]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		rowNum := i + 1
		if cell(row, "name") == "" {
			// boş satır
			continue
		}

		in, reason := rowInput(row, cell)
		if reason != "" {
			rowErrs = append(rowErrs, ImportRowError{Row: rowNum, Reason: reason})
			continue
		}
		inputs = append(inputs, in)
		rowNums = append(rowNums, rowNum)
	}
	return sheet, inputs, rowNums, rowErrs, nil
}

func mapHeader(row []string) map[string]int {
	m := make(map[string]int)
	for i, h := range row {
		key := strings.ToLower(strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(h)), ""))
		if field, ok := headerAliases[key]; ok {
			if _, dup := m[field]; !dup {
				m[field] = i
			}
		}
	}
	return m
}

func rowInput(row []string, cell func([]string, string) string) (ProductInput, string) {
	in := ProductInput{
		Name:        cell(row, "name"),
		Category:    cell(row, "category"),
		Barcode:     cell(row, "barcode"),
		BatchNumber: cell(row, "batch_number"),
	}
	if in.Category == "" {
		in.Category = "General"
	}
	if in.BatchNumber == "" {
		in.BatchNumber = "N/A"
	}

	expiry, ok := parseExpiry(cell(row, "expiry_date"))
	if !ok {
		return in, "expiry date missing or unreadable"
	}
	in.ExpiryDate = expiry.Format(dateLayout)

	var err error
	if in.CostPrice, err = parseMoney(cell(row, "cost_price")); err != nil {
		return in, "cost price is not a number"
	}
	if in.SellingPrice, err = parseMoney(cell(row, "selling_price")); err != nil {
		return in, "selling price is not a number"
	}
	if msg := checkPrices(in.CostPrice, in.SellingPrice); msg != "" {
		return in, msg
	}

	if raw := cell(row, "stock"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return in, "stock must be a non-negative integer"
		}
		in.Stock = n
	}
	if raw := cell(row, "min_stock_level"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return in, "min stock level must be a non-negative integer"
		}
		in.MinStockLevel = &n
	}
	return in, ""
}

func parseExpiry(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	// Biçimlendirilmemiş hücreler Excel seri numarası olarak gelir
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseMoney(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
}

// POST /api/inventory/import?branch_id=  (multipart, field "file")
func ImportProductsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		requested, err := scope.ParseBranchParam(c.Query("branch_id", c.FormValue("branch_id")))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		branchID, err := scope.Target(user, requested)
		if err != nil {
			return scope.HTTPError(err)
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "File upload missing")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "Only .xlsx files can be imported")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "File could not be opened")
		}
		defer file.Close()

		sheet, inputs, rowNums, rowErrs, err := ParseSheet(file)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result := ImportResult{Sheet: sheet, Errors: rowErrs}
		for i := range inputs {
			in := &inputs[i]
			if err := validate.Struct(in); err != nil {
				result.Errors = append(result.Errors, ImportRowError{Row: rowNums[i], Reason: err.Error()})
				continue
			}
			p, err := in.toModel(branchID)
			if err != nil {
				result.Errors = append(result.Errors, ImportRowError{Row: rowNums[i], Reason: "expiry date unreadable"})
				continue
			}
			if err := database.DB.Create(&p).Error; err != nil {
				zap.L().Warn("import row failed", zap.Int("row", rowNums[i]), zap.Error(err))
				result.Errors = append(result.Errors, ImportRowError{Row: rowNums[i], Reason: "product could not be saved"})
				continue
			}
			result.Created++

			_ = audit.WriteLog(audit.LogOptions{
				BranchID:    &p.BranchID,
				UserID:      user.ID,
				UserName:    user.Name,
				EntityType:  models.EntityProduct,
				EntityID:    p.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Product imported: %s (stock %d)", p.Name, p.Stock),
				After:       audit.SnapshotProduct(&p),
			})
		}
		result.Skipped = len(result.Errors)
		if result.Errors == nil {
			result.Errors = []ImportRowError{}
		}

		zap.L().Info("inventory import finished",
			zap.Uint("branch_id", branchID),
			zap.Int("created", result.Created),
			zap.Int("skipped", result.Skipped))

		return c.JSON(result)
	}
}
