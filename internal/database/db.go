package database

import (
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"              // SQLite driver

	"orderhub/internal/models"
)

// Open connects to a relational database and migrates the order tables
func Open(driver, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	// sqlite serializes writers; a single connection also keeps :memory: databases shared
	if driver == "sqlite3" {
		db.DB().SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the orders and history tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Order{}, &models.StatusEntry{}).Error; err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
