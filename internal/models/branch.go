package models

import "time"

type Branch struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;not null"`
	NameKey   string `gorm:"size:100;not null;uniqueIndex"` // büyük/küçük harf duyarsız tekillik anahtarı
	Location  string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
