// Package seed loads the embedded demo fixture into an empty database.
package seed

import (
	_ "embed"
	"fmt"
	"time"

	"nexile-backend/internal/branch"
	"nexile-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed fixture.yaml
var defaultFixture []byte

type Fixture struct {
	Branches []struct {
		Key      string `yaml:"key"`
		Name     string `yaml:"name"`
		Location string `yaml:"location"`
	} `yaml:"branches"`
	Users []struct {
		Key      string          `yaml:"key"`
		Name     string          `yaml:"name"`
		Email    string          `yaml:"email"`
		Password string          `yaml:"password"`
		Role     models.UserRole `yaml:"role"`
		Branch   string          `yaml:"branch"`
		Manages  []string        `yaml:"manages"`
	} `yaml:"users"`
	Products []struct {
		Key           string `yaml:"key"`
		Name          string `yaml:"name"`
		Category      string `yaml:"category"`
		Barcode       string `yaml:"barcode"`
		BatchNumber   string `yaml:"batch_number"`
		ExpiryDate    string `yaml:"expiry_date"`
		CostPrice     string `yaml:"cost_price"`
		SellingPrice  string `yaml:"selling_price"`
		Stock         int    `yaml:"stock"`
		MinStockLevel int    `yaml:"min_stock_level"`
		Branch        string `yaml:"branch"`
	} `yaml:"products"`
	Transactions []struct {
		DaysAgo       int                  `yaml:"days_ago"`
		Branch        string               `yaml:"branch"`
		User          string               `yaml:"user"`
		PaymentMethod models.PaymentMethod `yaml:"payment_method"`
		Items         []struct {
			Product  string `yaml:"product"`
			Quantity int    `yaml:"quantity"`
			Price    string `yaml:"price"`
		} `yaml:"items"`
	} `yaml:"transactions"`
}

type Result struct {
	Skipped      bool
	Branches     int
	Users        int
	Products     int
	Transactions int
}

func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fixture could not be parsed: %w", err)
	}
	return &f, nil
}

// Default returns the embedded demo fixture.
func Default() (*Fixture, error) {
	return Parse(defaultFixture)
}

// Apply inserts f in one database transaction. A database that already has users is
// left untouched.
func Apply(db *gorm.DB, f *Fixture, now time.Time) (Result, error) {
	var users int64
	if err := db.Model(&models.User{}).Count(&users).Error; err != nil {
		return Result{}, err
	}
	if users > 0 {
		zap.L().Info("seed skipped: users already exist", zap.Int64("users", users))
		return Result{Skipped: true}, nil
	}

	var res Result
	err := db.Transaction(func(tx *gorm.DB) error {
		branchIDs := make(map[string]uint)
		for _, b := range f.Branches {
			created, _, err := branch.FindOrCreate(tx, b.Name, b.Location)
			if err != nil {
				return fmt.Errorf("branch %s: %w", b.Key, err)
			}
			branchIDs[b.Key] = created.ID
			res.Branches++
		}
		ref := func(kind, key string, ids map[string]uint) (uint, error) {
			id, ok := ids[key]
			if !ok {
				return 0, fmt.Errorf("unknown %s %q", kind, key)
			}
			return id, nil
		}

		userIDs := make(map[string]uint)
		for _, u := range f.Users {
			if !u.Role.Valid() {
				return fmt.Errorf("user %s: invalid role %q", u.Key, u.Role)
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			m := models.User{Name: u.Name, Email: u.Email, PasswordHash: string(hash), Role: u.Role}
			if u.Branch != "" {
				id, err := ref("branch", u.Branch, branchIDs)
				if err != nil {
					return err
				}
				m.AssignedBranchID = &id
			}
			for _, key := range u.Manages {
				id, err := ref("branch", key, branchIDs)
				if err != nil {
					return err
				}
				m.ManagedBranches = append(m.ManagedBranches, models.ManagedBranch{BranchID: id})
			}
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("user %s: %w", u.Key, err)
			}
			userIDs[u.Key] = m.ID
			res.Users++
		}

		productIDs := make(map[string]uint)
		productNames := make(map[string]string)
		for _, p := range f.Products {
			branchID, err := ref("branch", p.Branch, branchIDs)
			if err != nil {
				return err
			}
			expiry, err := time.Parse("2006-01-02", p.ExpiryDate)
			if err != nil {
				return fmt.Errorf("product %s: expiry: %w", p.Key, err)
			}
			cost, err := decimal.NewFromString(p.CostPrice)
			if err != nil {
				return fmt.Errorf("product %s: cost: %w", p.Key, err)
			}
			price, err := decimal.NewFromString(p.SellingPrice)
			if err != nil {
				return fmt.Errorf("product %s: price: %w", p.Key, err)
			}
			m := models.Product{
				Name: p.Name, Category: p.Category, Barcode: p.Barcode, BatchNumber: p.BatchNumber,
				ExpiryDate: expiry, CostPrice: cost, SellingPrice: price,
				Stock: p.Stock, MinStockLevel: p.MinStockLevel, BranchID: branchID,
			}
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("product %s: %w", p.Key, err)
			}
			productIDs[p.Key] = m.ID
			productNames[p.Key] = m.Name
			res.Products++
		}

		// Örnek satışlar geçmiş kayıt olarak eklenir, stok düşülmez
		for i, t := range f.Transactions {
			branchID, err := ref("branch", t.Branch, branchIDs)
			if err != nil {
				return err
			}
			userID, err := ref("user", t.User, userIDs)
			if err != nil {
				return err
			}
			m := models.Transaction{
				Reference:     uuid.NewString(),
				Date:          now.AddDate(0, 0, -t.DaysAgo),
				BranchID:      branchID,
				UserID:        userID,
				PaymentMethod: t.PaymentMethod,
				TotalAmount:   decimal.Zero,
			}
			for _, it := range t.Items {
				pid, err := ref("product", it.Product, productIDs)
				if err != nil {
					return err
				}
				price, err := decimal.NewFromString(it.Price)
				if err != nil {
					return fmt.Errorf("transaction %d: price: %w", i, err)
				}
				item := models.TransactionItem{ProductID: pid, Name: productNames[it.Product], Quantity: it.Quantity, Price: price}
				m.Items = append(m.Items, item)
				m.TotalAmount = m.TotalAmount.Add(item.LineTotal())
			}
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("transaction %d: %w", i, err)
			}
			res.Transactions++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	zap.L().Info("seed applied",
		zap.Int("branches", res.Branches),
		zap.Int("users", res.Users),
		zap.Int("products", res.Products),
		zap.Int("transactions", res.Transactions))
	return res, nil
}
