package db

import (
	"fmt"

	"go_subdns/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate runs database migrations for all models
func Migrate(gdb *gorm.DB, log *logrus.Entry) error {
	models := model.All()
	if log != nil {
		log.WithField("tables", len(models)).Info("Starting database migration")
	}

	if err := gdb.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if log != nil {
		log.WithField("tables", len(models)).Info("Database migration completed")
	}
	return nil
}
