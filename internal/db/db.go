package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lumosgraph/backend/internal/chat"
	"github.com/lumosgraph/backend/internal/checkpoint"
	"github.com/lumosgraph/backend/internal/docs"
)

// Connect opens the postgres database and migrates the schema the server owns.
func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&chat.Thread{},
		&chat.Message{},
		&checkpoint.Checkpoint{},
		&docs.Chunk{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
