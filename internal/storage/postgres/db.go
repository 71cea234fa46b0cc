package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tinywideclouds/go-push-gateway/internal/storage"
)

// Open connects to Postgres and migrates the gateway's tables.
// TranslateError is required: the resolver's conflict retry relies on
// unique-index violations surfacing as gorm.ErrDuplicatedKey.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	err = db.AutoMigrate(
		&storage.AppCredentials{},
		&storage.DeviceRegistration{},
		&storage.PushMessageRecord{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}
