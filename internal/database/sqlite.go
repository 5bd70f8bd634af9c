package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/codyseavey/poe2-price-checker/backend/internal/models"
)

var DB *gorm.DB

// Initialize opens the database at dbPath and runs migrations. debug logs every SQL statement.
func Initialize(dbPath string, debug bool) error {
	logLevel := logger.Warn
	if debug {
		logLevel = logger.Info
	}
	db, err := open(dbPath, logLevel)
	if err != nil {
		return err
	}
	DB = db

	log.Println("Database connected successfully")

	if err := RunMigrations(DB); err != nil {
		return err
	}

	log.Println("Database migration completed")
	return nil
}

// Open connects to the sqlite database at dbPath and migrates the schema.
// ":memory:" gives a private in-memory database backed by a single connection.
func Open(dbPath string) (*gorm.DB, error) {
	return open(dbPath, logger.Warn)
}

func open(dbPath string, logLevel logger.LogLevel) (*gorm.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	if dbPath == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	err = db.AutoMigrate(
		&models.StatCacheEntry{},
		&models.PriceRecord{},
		&models.ScanRecord{},
		&models.LearningRecord{},
		&models.LearningPattern{},
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func GetDB() *gorm.DB {
	return DB
}
