package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/RigelNana/backdrop/services/compose-service/models"
)

// InitDB opens the run store and migrates its schema. The default DSN is an
// in-memory SQLite database, so runs live only as long as the process.
func InitDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// 内存库只能有一个连接，否则每个连接各自一份数据
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Run{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}
