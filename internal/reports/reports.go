// Package reports builds the downloadable report tables (sales, stock, expiry, profit,
// branch performance) over the caller's visible branches.
package reports

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"nexile-backend/internal/inventory"
	"nexile-backend/internal/models"

	"github.com/shopspring/decimal"
)

type Type string

const (
	DailySales  Type = "DAILY_SALES"
	StockLevels Type = "STOCK_LEVELS"
	LowStock    Type = "LOW_STOCK"
	ExpiryRisk  Type = "EXPIRY_RISK"
	ProfitLoss  Type = "PROFIT_LOSS"
	BranchPerf  Type = "BRANCH_PERF"
)

var titles = map[Type]string{
	DailySales:  "Daily Sales Report",
	StockLevels: "Stock Availability List",
	LowStock:    "Low Stock Alerts",
	ExpiryRisk:  "Expiry Risk Report",
	ProfitLoss:  "Profit & Margin Analysis",
	BranchPerf:  "Branch Performance",
}

// Tahmini maliyet oranı, ürün silinmişse kullanılır
var fallbackCostRatio = decimal.RequireFromString("0.7")

func ParseType(raw string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := titles[t]
	return t, ok
}

func (t Type) Title() string { return titles[t] }

// Allowed reports whether role may run the report.
func (t Type) Allowed(role models.UserRole) bool {
	switch t {
	case ProfitLoss, BranchPerf:
		return role == models.RoleManager || role == models.RoleOwner
	}
	return role.Valid()
}

type Table struct {
	Type      Type                       `json:"type"`
	Title     string                     `json:"title"`
	Branch    string                     `json:"branch"`
	From      string                     `json:"from"`
	To        string                     `json:"to"`
	Headers   []string                   `json:"headers"`
	Rows      [][]string                 `json:"rows"`
	Summary   map[string]decimal.Decimal `json:"summary,omitempty"`
	Generated time.Time                  `json:"generated_at"`
}

// BranchTotal is one row of the grouped branch aggregate.
type BranchTotal struct {
	BranchID uint            `db:"branch_id"`
	TxCount  int             `db:"tx_count"`
	Revenue  decimal.Decimal `db:"revenue"`
}

// Input is everything a report reads. Products and Transactions are already restricted
// to the visible branches, transactions to the period.
type Input struct {
	Now          time.Time
	Period       Period
	Query        string
	BranchName   string
	RiskDays     int
	Products     []models.Product
	Transactions []models.Transaction
	Branches     []models.Branch
	BranchTotals []BranchTotal
}

func Build(t Type, in Input) Table {
	tbl := Table{
		Type:      t,
		Title:     t.Title(),
		Branch:    in.BranchName,
		From:      in.Period.From.Format(dateLayout),
		To:        in.Period.To.Format(dateLayout),
		Rows:      [][]string{},
		Generated: in.Now,
	}
	term := strings.ToLower(strings.TrimSpace(in.Query))

	switch t {
	case DailySales:
		buildDailySales(&tbl, in, term)
	case StockLevels:
		buildStockLevels(&tbl, in, term)
	case LowStock:
		buildLowStock(&tbl, in, term)
	case ExpiryRisk:
		buildExpiryRisk(&tbl, in, term)
	case ProfitLoss:
		buildProfitLoss(&tbl, in)
	case BranchPerf:
		buildBranchPerf(&tbl, in)
	}
	return tbl
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func buildDailySales(tbl *Table, in Input, term string) {
	tbl.Headers = []string{"Transaction ID", "Date", "Time", "Items Count", "Total Amount", "Payment Method"}
	revenue := decimal.Zero
	count := 0
	for _, t := range in.Transactions {
		if term != "" &&
			!strings.Contains(strings.ToLower(t.Reference), term) &&
			!strings.Contains(strings.ToLower(string(t.PaymentMethod)), term) {
			continue
		}
		local := t.Date.In(in.Now.Location())
		tbl.Rows = append(tbl.Rows, []string{
			t.Reference,
			local.Format(dateLayout),
			local.Format("15:04:05"),
			strconv.Itoa(len(t.Items)),
			money(t.TotalAmount),
			string(t.PaymentMethod),
		})
		revenue = revenue.Add(t.TotalAmount)
		count++
	}
	avg := decimal.Zero
	if count > 0 {
		avg = revenue.Div(decimal.NewFromInt(int64(count))).Round(2)
	}
	tbl.Summary = map[string]decimal.Decimal{
		"total_revenue": revenue,
		"transactions":  decimal.NewFromInt(int64(count)),
		"avg_ticket":    avg,
	}
}

func matchesProduct(p *models.Product, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Category), term) ||
		strings.Contains(strings.ToLower(p.BatchNumber), term)
}

func buildStockLevels(tbl *Table, in Input, term string) {
	tbl.Headers = []string{"Product Name", "Category", "Batch", "Expiry", "Stock", "Cost Value"}
	total := decimal.Zero
	for i := range in.Products {
		p := &in.Products[i]
		if !matchesProduct(p, term) {
			continue
		}
		value := p.CostPrice.Mul(decimal.NewFromInt(int64(p.Stock)))
		total = total.Add(value)
		tbl.Rows = append(tbl.Rows, []string{
			p.Name, p.Category, p.BatchNumber, p.ExpiryDate.Format(dateLayout), strconv.Itoa(p.Stock), money(value),
		})
	}
	tbl.Summary = map[string]decimal.Decimal{"stock_value": total}
}

func buildLowStock(tbl *Table, in Input, term string) {
	tbl.Headers = []string{"Product Name", "Category", "Current Stock", "Min Level", "Cost Price", "Selling Price"}
	for i := range in.Products {
		p := &in.Products[i]
		if !p.IsLowStock() {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(p.Name), term) {
			continue
		}
		tbl.Rows = append(tbl.Rows, []string{
			p.Name, p.Category, strconv.Itoa(p.Stock), strconv.Itoa(p.MinStockLevel), money(p.CostPrice), money(p.SellingPrice),
		})
	}
}

func buildExpiryRisk(tbl *Table, in Input, term string) {
	tbl.Headers = []string{"Product Name", "Batch", "Expiry Date", "Days Remaining", "Current Stock"}
	risky := make([]*models.Product, 0)
	for i := range in.Products {
		p := &in.Products[i]
		if inventory.DaysUntil(p.ExpiryDate, in.Now) > in.RiskDays || !matchesProduct(p, term) {
			continue
		}
		risky = append(risky, p)
	}
	sort.SliceStable(risky, func(i, j int) bool { return risky[i].ExpiryDate.Before(risky[j].ExpiryDate) })
	for _, p := range risky {
		tbl.Rows = append(tbl.Rows, []string{
			p.Name, p.BatchNumber, p.ExpiryDate.Format(dateLayout),
			strconv.Itoa(inventory.DaysUntil(p.ExpiryDate, in.Now)), strconv.Itoa(p.Stock),
		})
	}
}

// ProfitFigures computes revenue, cost of goods sold and profit over txns. Items whose
// product is gone are costed at 70% of their sale price.
func ProfitFigures(txns []models.Transaction, products []models.Product) (revenue, cogs, profit, margin decimal.Decimal) {
	cost := make(map[uint]decimal.Decimal, len(products))
	for _, p := range products {
		cost[p.ID] = p.CostPrice
	}
	revenue, cogs = decimal.Zero, decimal.Zero
	for _, t := range txns {
		revenue = revenue.Add(t.TotalAmount)
		for _, it := range t.Items {
			unit, ok := cost[it.ProductID]
			if !ok || unit.IsZero() {
				unit = it.Price.Mul(fallbackCostRatio)
			}
			cogs = cogs.Add(unit.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
	}
	profit = revenue.Sub(cogs)
	margin = decimal.Zero
	if !revenue.IsZero() {
		margin = profit.Div(revenue).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return revenue, cogs, profit, margin
}

func buildProfitLoss(tbl *Table, in Input) {
	revenue, cogs, profit, margin := ProfitFigures(in.Transactions, in.Products)
	tbl.Headers = []string{"Metric", "Value"}
	tbl.Rows = [][]string{
		{"Total Revenue", money(revenue)},
		{"Cost of Goods Sold", money(cogs)},
		{"Net Profit", money(profit)},
		{"Margin %", margin.StringFixed(2) + "%"},
	}
	tbl.Summary = map[string]decimal.Decimal{
		"revenue": revenue, "cogs": cogs, "profit": profit, "margin": margin,
	}
}

func buildBranchPerf(tbl *Table, in Input) {
	tbl.Headers = []string{"Branch ID", "Branch Name", "Location", "Total Revenue", "Tx Count"}
	byBranch := make(map[uint]BranchTotal, len(in.BranchTotals))
	for _, bt := range in.BranchTotals {
		byBranch[bt.BranchID] = bt
	}
	total := decimal.Zero
	for _, b := range in.Branches {
		bt := byBranch[b.ID]
		total = total.Add(bt.Revenue)
		tbl.Rows = append(tbl.Rows, []string{
			fmt.Sprint(b.ID), b.Name, b.Location, money(bt.Revenue), strconv.Itoa(bt.TxCount),
		})
	}
	tbl.Summary = map[string]decimal.Decimal{"total_revenue": total}
}

// ShareText is the plain-text summary sent through messaging apps.
func ShareText(t Type, branchName string, p Period, txns []models.Transaction) string {
	revenue := decimal.Zero
	for _, tx := range txns {
		revenue = revenue.Add(tx.TotalAmount)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Nexile Report: %s*\n", t.Title())
	fmt.Fprintf(&b, "Branch: %s\n", branchName)
	fmt.Fprintf(&b, "Date: %s\n", p)
	b.WriteString("------------------\n")
	fmt.Fprintf(&b, "Total Revenue: $%s\n", money(revenue))
	fmt.Fprintf(&b, "Transactions: %d\n", len(txns))
	b.WriteString("------------------\n")
	b.WriteString("Generated via Nexile OS")
	return b.String()
}
