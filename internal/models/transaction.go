package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentCard   PaymentMethod = "CARD"
	PaymentOnline PaymentMethod = "ONLINE"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentOnline:
		return true
	}
	return false
}

var ErrTransactionImmutable = errors.New("transactions are immutable")

// Transaction: satış kaydı. Oluşturulduktan sonra değiştirilemez.
type Transaction struct {
	ID            uint              `gorm:"primaryKey"`
	Reference     string            `gorm:"size:36;uniqueIndex;not null"`
	Date          time.Time         `gorm:"index;not null"`
	TotalAmount   decimal.Decimal   `gorm:"type:numeric(14,2);not null"`
	BranchID      uint              `gorm:"index;not null"`
	UserID        uint              `gorm:"index;not null"`
	PaymentMethod PaymentMethod     `gorm:"size:10;not null"`
	Items         []TransactionItem `gorm:"foreignKey:TransactionID"`
	CreatedAt     time.Time
}

// TransactionItem: name ve price satış anındaki kopyalardır, ürüne canlı referans değildir
type TransactionItem struct {
	ID            uint            `gorm:"primaryKey"`
	TransactionID uint            `gorm:"index;not null"`
	ProductID     uint            `gorm:"index;not null"`
	Name          string          `gorm:"size:150;not null"`
	Quantity      int             `gorm:"not null"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
}

func (i TransactionItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrTransactionImmutable
}

func (t *Transaction) BeforeDelete(tx *gorm.DB) error {
	return ErrTransactionImmutable
}

func (i *TransactionItem) BeforeUpdate(tx *gorm.DB) error {
	return ErrTransactionImmutable
}

func (i *TransactionItem) BeforeDelete(tx *gorm.DB) error {
	return ErrTransactionImmutable
}
