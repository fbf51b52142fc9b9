package database

import (
	"fmt"
	"time"

	"nexile-backend/internal/config"
	"nexile-backend/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens the configured database, migrates it and publishes it as DB.
func Init(cfg *config.Config) error {
	dsn := cfg.DatabaseDSN
	if cfg.DatabaseDriver == "sqlite" {
		dsn = cfg.SQLitePath
	}

	db, err := Open(cfg.DatabaseDriver, dsn)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return err
	}

	DB = db
	zap.L().Info("database ready",
		zap.String("driver", cfg.DatabaseDriver),
		zap.Bool("sales_atomic", cfg.SalesAtomic))
	return nil
}

func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// Referanslar yumuşak: veritabanı seviyesinde FK yok
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("could not get sql.DB: %w", err)
	}
	if driver == "sqlite" {
		// SQLite tek yazıcı kabul ediyor
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Branch{},
		&models.User{},
		&models.ManagedBranch{},
		&models.Product{},
		&models.Transaction{},
		&models.TransactionItem{},
		&models.AuditLog{},
		&models.WriteOff{},
	); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

// SQLX wraps the pool behind db for hand-written aggregate queries.
func SQLX(db *gorm.DB) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	driverName := "pgx"
	if db.Dialector.Name() == "sqlite" {
		driverName = "sqlite3"
	}
	return sqlx.NewDb(sqlDB, driverName), nil
}
