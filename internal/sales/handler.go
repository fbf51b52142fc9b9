package sales

import (
	"errors"
	"fmt"
	"time"

	"nexile-backend/internal/audit"
	"nexile-backend/internal/auth"
	"nexile-backend/internal/database"
	"nexile-backend/internal/models"
	"nexile-backend/internal/scope"
	"nexile-backend/internal/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreateTransactionItem struct {
	ProductID uint             `json:"product_id" validate:"required"`
	Name      string           `json:"name"`
	Quantity  int              `json:"quantity" validate:"gt=0"`
	Price     *decimal.Decimal `json:"price"` // boşsa ürünün satış fiyatı
}

type CreateTransactionRequest struct {
	BranchID      *uint                   `json:"branch_id"`
	PaymentMethod models.PaymentMethod    `json:"payment_method" validate:"required,oneof=CASH CARD ONLINE"`
	Items         []CreateTransactionItem `json:"items" validate:"required,min=1,dive"`
}

type TransactionItemResponse struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type TransactionResponse struct {
	ID            uint                      `json:"id"`
	Reference     string                    `json:"reference"`
	Date          time.Time                 `json:"date"`
	TotalAmount   decimal.Decimal           `json:"total_amount"`
	BranchID      uint                      `json:"branch_id"`
	UserID        uint                      `json:"user_id"`
	PaymentMethod models.PaymentMethod      `json:"payment_method"`
	Items         []TransactionItemResponse `json:"items"`
}

type StockLevel struct {
	ProductID     uint `json:"product_id"`
	Stock         int  `json:"stock"`
	MinStockLevel int  `json:"min_stock_level"`
	LowStock      bool `json:"low_stock"`
}

type CreateTransactionResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Stock       []StockLevel        `json:"stock"`
}

func NewTransactionResponse(t *models.Transaction) TransactionResponse {
	items := make([]TransactionItemResponse, 0, len(t.Items))
	for _, it := range t.Items {
		items = append(items, TransactionItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return TransactionResponse{
		ID:            t.ID,
		Reference:     t.Reference,
		Date:          t.Date,
		TotalAmount:   t.TotalAmount,
		BranchID:      t.BranchID,
		UserID:        t.UserID,
		PaymentMethod: t.PaymentMethod,
		Items:         items,
	}
}

// POST /api/transactions
func CreateTransactionHandler(rec *Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var body CreateTransactionRequest
		if err := validate.Body(c, &body); err != nil {
			return err
		}

		branchID, err := scope.Target(user, body.BranchID)
		if err != nil {
			return scope.HTTPError(err)
		}

		// Ürünlerin bu şubeye ait olduğunu kontrol et (transaction dışında, kilitsiz)
		ids := make([]uint, 0, len(body.Items))
		for _, it := range body.Items {
			ids = append(ids, it.ProductID)
		}
		var products []models.Product
		if err := database.DB.Where("id IN ? AND branch_id = ?", ids, branchID).Find(&products).Error; err != nil {
			return err
		}
		byID := make(map[uint]models.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		sale := Sale{
			BranchID:      branchID,
			UserID:        user.ID,
			PaymentMethod: body.PaymentMethod,
			Items:         make([]LineItem, 0, len(body.Items)),
		}
		for _, it := range body.Items {
			p, ok := byID[it.ProductID]
			if !ok {
				return fiber.NewError(fiber.StatusBadRequest,
					fmt.Sprintf("Product %d does not belong to branch %d", it.ProductID, branchID))
			}
			line := LineItem{ProductID: p.ID, Name: it.Name, Quantity: it.Quantity, UnitPrice: p.SellingPrice}
			if line.Name == "" {
				line.Name = p.Name
			}
			if it.Price != nil {
				line.UnitPrice = *it.Price
			}
			sale.Items = append(sale.Items, line)
		}

		txn, err := rec.Record(c.UserContext(), sale)
		if err != nil {
			switch {
			case errors.Is(err, ErrWriteFailed):
				return fiber.NewError(fiber.StatusInternalServerError, "Transaction failed")
			default:
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}

		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    &txn.BranchID,
			UserID:      user.ID,
			UserName:    user.Name,
			EntityType:  models.EntityTransaction,
			EntityID:    txn.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Sale %s: %s (%s)", txn.Reference, txn.TotalAmount.StringFixed(2), txn.PaymentMethod),
			After:       NewTransactionResponse(txn),
		})

		// Güncel stok durumunu geri döndür
		var fresh []models.Product
		if err := database.DB.Where("id IN ?", ids).Order("id asc").Find(&fresh).Error; err != nil {
			zap.L().Warn("could not reload stock after sale", zap.Error(err))
		}
		levels := make([]StockLevel, 0, len(fresh))
		for _, p := range fresh {
			levels = append(levels, StockLevel{
				ProductID:     p.ID,
				Stock:         p.Stock,
				MinStockLevel: p.MinStockLevel,
				LowStock:      p.IsLowStock(),
			})
		}

		return c.Status(fiber.StatusCreated).JSON(CreateTransactionResponse{
			Transaction: NewTransactionResponse(txn),
			Stock:       levels,
		})
	}
}

// GET /api/transactions?branch_id=&from=2025-01-01&to=2025-01-31&payment_method=CASH
func ListTransactionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		vis, err := scope.FromQuery(c, user)
		if err != nil {
			return err
		}

		dbq := vis.Apply(database.DB.Model(&models.Transaction{}), "branch_id")

		if from := c.Query("from"); from != "" {
			d, err := time.ParseInLocation("2006-01-02", from, time.Local)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "from must be YYYY-MM-DD")
			}
			dbq = dbq.Where("date >= ?", d)
		}
		if to := c.Query("to"); to != "" {
			d, err := time.ParseInLocation("2006-01-02", to, time.Local)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "to must be YYYY-MM-DD")
			}
			dbq = dbq.Where("date < ?", d.AddDate(0, 0, 1))
		}
		if pm := models.PaymentMethod(c.Query("payment_method")); pm != "" {
			if !pm.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "payment_method must be CASH, CARD or ONLINE")
			}
			dbq = dbq.Where("payment_method = ?", pm)
		}

		var txns []models.Transaction
		if err := dbq.Preload("Items").Order("date desc, id desc").Find(&txns).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Transactions could not be listed")
		}

		res := make([]TransactionResponse, 0, len(txns))
		for i := range txns {
			res = append(res, NewTransactionResponse(&txns[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/transactions/:id
func GetTransactionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid transaction id")
		}

		var txn models.Transaction
		if err := database.DB.Preload("Items").First(&txn, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Transaction not found")
		}

		vis, err := scope.Resolve(user, nil)
		if err != nil {
			return scope.HTTPError(err)
		}
		if !vis.Contains(txn.BranchID) {
			return fiber.NewError(fiber.StatusNotFound, "Transaction not found")
		}
		return c.JSON(NewTransactionResponse(&txn))
	}
}
