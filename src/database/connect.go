package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"riskpilot/src/model"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// InitMainDB initializes the main (read/write) database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()

	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	}

	var db *gorm.DB
	var err error
	switch config.Driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(config.DatabaseURL), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(config.SQLitePath), gormConfig)
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", config.Driver)
	}
	if err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Failed to get DB from GORM")
		return err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.WithField("driver", config.Driver).Info("[database] MainDB connection established")

	if err := db.AutoMigrate(
		&model.AccountState{},
		&model.Position{},
		&model.ClosedTrade{},
		&model.CooldownRecord{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
