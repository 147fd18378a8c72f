package database

import (
	"fmt"
	"os"
	"path/filepath"

	"media-grab/app/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open 打开任务数据库并迁移表结构
func Open(dbPath string, log *logger.Logger) (*gorm.DB, error) {
	// 确保数据库文件目录存在
	if err := ensureDir(filepath.Dir(dbPath)); err != nil {
		log.Errorf("创建数据库目录失败: %v", err)
		return nil, err
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL", dbPath)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Errorf("连接数据库失败: %v", err)
		return nil, err
	}

	// sqlite 只保留一个连接，写入由连接串行化
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(db); err != nil {
		log.Errorf("迁移表结构失败: %v", err)
		return nil, err
	}

	log.Infof("数据库连接成功: %s", dbPath)
	return db, nil
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ensureDir 确保目录存在
func ensureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
