package database

import (
	"media-grab/app/model"

	"gorm.io/gorm"
)

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.DownloadTask{},
	)
}
