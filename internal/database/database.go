package database

import (
	"github.com/alexnikon/wgbot/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(file string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(file), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	db.Config.Logger = logger.Default.LogMode(logger.Silent)

	err = db.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.Payment{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
