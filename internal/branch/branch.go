// Package branch resolves pharmacy branches by case-insensitive name.
package branch

import (
	"errors"
	"strings"

	"nexile-backend/internal/models"

	"golang.org/x/text/cases"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrEmptyName = errors.New("branch name is required")

var folder = cases.Fold()

// Key returns the dedup key for a branch name: trimmed, inner whitespace collapsed,
// Unicode case-folded.
func Key(name string) string {
	return folder.String(strings.Join(strings.Fields(name), " "))
}

// FindOrCreate returns the branch whose name matches case-insensitively, creating it
// with location when none exists. created reports whether a row was inserted.
func FindOrCreate(db *gorm.DB, name, location string) (b *models.Branch, created bool, err error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return nil, false, ErrEmptyName
	}
	key := Key(name)

	var existing models.Branch
	err = db.Where("name_key = ?", key).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	return create(db, name, key, location)
}

// create inserts the branch unless another writer got there first. ON CONFLICT keeps
// an enclosing Postgres transaction usable, so the follow-up read still works.
func create(db *gorm.DB, name, key, location string) (*models.Branch, bool, error) {
	nb := models.Branch{Name: name, NameKey: key, Location: location}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name_key"}},
		DoNothing: true,
	}).Create(&nb)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return &nb, true, nil
	}

	var existing models.Branch
	if err := db.Where("name_key = ?", key).First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func Exists(db *gorm.DB, id uint) (bool, error) {
	var count int64
	if err := db.Model(&models.Branch{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
