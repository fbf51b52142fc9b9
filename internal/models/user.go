package models

import "time"

type UserRole string

const (
	RoleOwner      UserRole = "OWNER"
	RoleManager    UserRole = "MANAGER"
	RolePharmacist UserRole = "PHARMACIST"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RolePharmacist:
		return true
	}
	return false
}

type User struct {
	ID           uint     `gorm:"primaryKey"`
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`

	// Sadece eczacılar için
	AssignedBranchID *uint `gorm:"index"`
	// Sadece müdürler için
	ManagedBranches []ManagedBranch `gorm:"foreignKey:UserID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ManagedBranch: müdür <-> şube eşleşmesi
type ManagedBranch struct {
	UserID   uint `gorm:"primaryKey"`
	BranchID uint `gorm:"primaryKey"`
}

func (u *User) ManagedBranchIDs() []uint {
	ids := make([]uint, 0, len(u.ManagedBranches))
	for _, mb := range u.ManagedBranches {
		ids = append(ids, mb.BranchID)
	}
	return ids
}
