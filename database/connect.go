package database

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mwork_attachments/internal/config"
	"mwork_attachments/internal/logger"
)

// Connect opens the database named by cfg.Database. Writes skip gorm's
// implicit transaction so a row is committed before its AfterSave hook runs
// attachment processing.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	return Open(cfg.Database.Driver, cfg.Database.DSN, !cfg.IsProduction())
}

// Open opens a postgres, mysql or sqlite database.
func Open(driver, dsn string, verbose bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	level := gormlogger.Warn
	if !verbose {
		level = gormlogger.Error
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	// every connection to an in-memory sqlite database is a separate database
	if driver == "sqlite" && strings.Contains(dsn, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	logger.Info("database connected", "driver", driver)
	return db, nil
}
