package models

import "time"

// WriteOff: son kullanma tarihi geçmiş veya hasarlı ürünün stoktan düşülmesi
type WriteOff struct {
	ID          uint      `gorm:"primaryKey"`
	BranchID    uint      `gorm:"index;not null"`
	ProductID   uint      `gorm:"index;not null"`
	ProductName string    `gorm:"size:150;not null"` // silinen ürünlerde de okunabilsin
	UserID      uint      `gorm:"index;not null"`
	Date        time.Time `gorm:"index;not null"`
	Quantity    int       `gorm:"not null"`
	Reason      string    `gorm:"size:500;not null"`
	CreatedAt   time.Time
}
