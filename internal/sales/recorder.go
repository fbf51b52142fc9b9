// Package sales records point-of-sale transactions and adjusts product stock.
package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nexile-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrEmptySale       = errors.New("sale has no items")
	ErrInvalidQuantity = errors.New("item quantity must be positive")
	ErrInvalidPrice    = errors.New("item price must not be negative")
	ErrInvalidPayment  = errors.New("invalid payment method")
	ErrWriteFailed     = errors.New("sale could not be recorded")
)

type LineItem struct {
	ProductID uint
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

type Sale struct {
	BranchID      uint
	UserID        uint
	PaymentMethod models.PaymentMethod
	Items         []LineItem
}

func (s Sale) validate() error {
	if len(s.Items) == 0 {
		return ErrEmptySale
	}
	if !s.PaymentMethod.Valid() {
		return ErrInvalidPayment
	}
	for _, it := range s.Items {
		if it.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if it.UnitPrice.IsNegative() {
			return ErrInvalidPrice
		}
	}
	return nil
}

// Total is the sum of price × quantity over the items.
func (s Sale) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// Recorder is the stock-adjustment write path: it inserts the transaction record and
// decrements stock for every line.
//
// With atomic enabled both effects go through one database transaction. If that
// transaction cannot be opened the recorder logs a warning and writes sequentially;
// a failure partway through then leaves the earlier writes in place.
type Recorder struct {
	db     *gorm.DB
	atomic bool
	log    *zap.Logger
	now    func() time.Time
}

func NewRecorder(db *gorm.DB, atomic bool, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{db: db, atomic: atomic, log: log, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, sale Sale) (*models.Transaction, error) {
	if err := sale.validate(); err != nil {
		return nil, err
	}
	txn := r.build(sale)

	if !r.atomic {
		return r.recordSequential(ctx, txn)
	}

	session := r.db.WithContext(ctx).Begin()
	if session.Error != nil {
		r.log.Warn("atomic session unavailable, recording sale without it",
			zap.Uint("branch_id", sale.BranchID), zap.Error(session.Error))
		return r.recordSequential(ctx, txn)
	}

	if err := r.write(session, txn); err != nil {
		if rbErr := session.Rollback().Error; rbErr != nil {
			r.log.Error("rollback failed", zap.Error(rbErr))
		}
		r.log.Error("sale rolled back", zap.String("reference", txn.Reference), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := session.Commit().Error; err != nil {
		r.log.Error("sale commit failed", zap.String("reference", txn.Reference), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return txn, nil
}

func (r *Recorder) recordSequential(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if err := r.write(r.db.WithContext(ctx), txn); err != nil {
		// Önceki adımlar geri alınmaz
		r.log.Error("sale partially recorded", zap.String("reference", txn.Reference), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return txn, nil
}

func (r *Recorder) build(sale Sale) *models.Transaction {
	items := make([]models.TransactionItem, 0, len(sale.Items))
	for _, it := range sale.Items {
		items = append(items, models.TransactionItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice,
		})
	}
	return &models.Transaction{
		Reference:     uuid.NewString(),
		Date:          r.now(),
		TotalAmount:   sale.Total(),
		BranchID:      sale.BranchID,
		UserID:        sale.UserID,
		PaymentMethod: sale.PaymentMethod,
		Items:         items,
	}
}

// write inserts txn and applies one relative decrement per item, in payload order.
// Relative updates let concurrent sales of the same product compose without locks.
func (r *Recorder) write(db *gorm.DB, txn *models.Transaction) error {
	if err := db.Create(txn).Error; err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	for _, item := range txn.Items {
		res := db.Model(&models.Product{}).
			Where("id = ?", item.ProductID).
			UpdateColumns(map[string]any{
				"stock":      gorm.Expr("CASE WHEN stock >= ? THEN stock - ? ELSE 0 END", item.Quantity, item.Quantity),
				"updated_at": txn.Date,
			})
		if res.Error != nil {
			return fmt.Errorf("decrement stock of product %d: %w", item.ProductID, res.Error)
		}
		if res.RowsAffected == 0 {
			r.log.Warn("sold product not found, stock unchanged",
				zap.Uint("product_id", item.ProductID), zap.String("reference", txn.Reference))
		}
	}
	return nil
}
