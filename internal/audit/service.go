package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nexile-backend/internal/database"
	"nexile-backend/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAlreadyUndone = errors.New("this entry has already been undone")
	ErrNotUndoable   = errors.New("only product entries can be undone")
)

type LogOptions struct {
	BranchID    *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// ProductSnapshot is the JSON form of a product kept in before/after data.
type ProductSnapshot struct {
	ID            uint            `json:"id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Barcode       string          `json:"barcode"`
	BatchNumber   string          `json:"batch_number"`
	ExpiryDate    time.Time       `json:"expiry_date"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	Stock         int             `json:"stock"`
	MinStockLevel int             `json:"min_stock_level"`
	BranchID      uint            `json:"branch_id"`
}

func SnapshotProduct(p *models.Product) ProductSnapshot {
	return ProductSnapshot{
		ID:            p.ID,
		Name:          p.Name,
		Category:      p.Category,
		Barcode:       p.Barcode,
		BatchNumber:   p.BatchNumber,
		ExpiryDate:    p.ExpiryDate,
		CostPrice:     p.CostPrice,
		SellingPrice:  p.SellingPrice,
		Stock:         p.Stock,
		MinStockLevel: p.MinStockLevel,
		BranchID:      p.BranchID,
	}
}

func (s ProductSnapshot) model() models.Product {
	return models.Product{
		ID:            s.ID,
		Name:          s.Name,
		Category:      s.Category,
		Barcode:       s.Barcode,
		BatchNumber:   s.BatchNumber,
		ExpiryDate:    s.ExpiryDate,
		CostPrice:     s.CostPrice,
		SellingPrice:  s.SellingPrice,
		Stock:         s.Stock,
		MinStockLevel: s.MinStockLevel,
		BranchID:      s.BranchID,
	}
}

// WriteLog stores an audit entry. Failures are logged and returned; callers
// treat the audit trail as best effort.
func WriteLog(opts LogOptions) error {
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	entry := models.AuditLog{
		BranchID:    opts.BranchID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}

	if err := database.DB.Create(&entry).Error; err != nil {
		zap.L().Warn("audit log could not be written",
			zap.String("entity_type", opts.EntityType),
			zap.Uint("entity_id", opts.EntityID),
			zap.Error(err))
		return fmt.Errorf("audit log could not be written: %w", err)
	}
	return nil
}

// UndoLog reverses a product entry and records the reversal as a new "undo" entry.
func UndoLog(entry *models.AuditLog, userID uint, userName string) error {
	if entry.IsUndone {
		return ErrAlreadyUndone
	}
	if entry.EntityType != models.EntityProduct || entry.Action == models.AuditActionUndo {
		return ErrNotUndoable
	}

	return database.DB.Transaction(func(tx *gorm.DB) error {
		switch entry.Action {
		case models.AuditActionCreate:
			// Oluşturma geri alınınca ürün silinir
			if err := tx.Delete(&models.Product{}, "id = ?", entry.EntityID).Error; err != nil {
				return fmt.Errorf("product could not be deleted: %w", err)
			}

		case models.AuditActionUpdate:
			before, err := decodeProduct(entry.BeforeData)
			if err != nil {
				return err
			}
			after, err := decodeProduct(entry.AfterData)
			if err != nil {
				return err
			}
			changes := revertedFields(before, after)
			if len(changes) == 0 {
				break
			}
			res := tx.Model(&models.Product{}).Where("id = ?", entry.EntityID).Updates(changes)
			if res.Error != nil {
				return fmt.Errorf("product could not be restored: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("product %d no longer exists", entry.EntityID)
			}

		case models.AuditActionDelete:
			snap, err := decodeProduct(entry.BeforeData)
			if err != nil {
				return err
			}
			// Silinmiş ürün satılamaz; snapshot stoğu hâlâ geçerli
			p := snap.model()
			// Aynı ID ile geri oluştur ki eski satış kalemleri yine eşleşsin
			if err := tx.Create(&p).Error; err != nil {
				return fmt.Errorf("product could not be recreated: %w", err)
			}

		default:
			return ErrNotUndoable
		}

		now := time.Now()
		res := tx.Model(&models.AuditLog{}).Where("id = ? AND is_undone = ?", entry.ID, false).Updates(map[string]any{
			"is_undone": true,
			"undone_by": userID,
			"undone_at": now,
		})
		if res.Error != nil {
			return fmt.Errorf("audit log could not be updated: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyUndone
		}
		entry.IsUndone = true
		entry.UndoneBy = &userID
		entry.UndoneAt = &now

		undo := models.AuditLog{
			BranchID:    entry.BranchID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  entry.EntityType,
			EntityID:    entry.EntityID,
			Action:      models.AuditActionUndo,
			Description: "Undone: " + entry.Description,
			BeforeData:  entry.AfterData,
			AfterData:   entry.BeforeData,
		}
		if err := tx.Create(&undo).Error; err != nil {
			return fmt.Errorf("undo log could not be written: %w", err)
		}
		return nil
	})
}

// revertedFields lists only the columns the update changed. Stock is reverted as a
// relative delta so sales recorded after the edit are kept.
func revertedFields(before, after *ProductSnapshot) map[string]any {
	changes := make(map[string]any)
	if before.Name != after.Name {
		changes["name"] = before.Name
	}
	if before.Category != after.Category {
		changes["category"] = before.Category
	}
	if before.Barcode != after.Barcode {
		changes["barcode"] = before.Barcode
	}
	if before.BatchNumber != after.BatchNumber {
		changes["batch_number"] = before.BatchNumber
	}
	if !before.ExpiryDate.Equal(after.ExpiryDate) {
		changes["expiry_date"] = before.ExpiryDate
	}
	if !before.CostPrice.Equal(after.CostPrice) {
		changes["cost_price"] = before.CostPrice
	}
	if !before.SellingPrice.Equal(after.SellingPrice) {
		changes["selling_price"] = before.SellingPrice
	}
	if before.MinStockLevel != after.MinStockLevel {
		changes["min_stock_level"] = before.MinStockLevel
	}
	if delta := before.Stock - after.Stock; delta != 0 {
		changes["stock"] = gorm.Expr("CASE WHEN stock + ? >= 0 THEN stock + ? ELSE 0 END", delta, delta)
	}
	return changes
}

func decodeProduct(data string) (*ProductSnapshot, error) {
	var snap *ProductSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("snapshot could not be decoded: %w", err)
	}
	if snap == nil {
		return nil, errors.New("entry has no snapshot to restore")
	}
	return snap, nil
}
