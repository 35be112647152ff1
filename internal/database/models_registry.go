package database

import (
	"parley/internal/models"

	"gorm.io/gorm"
)

// RegisteredModels is the canonical list of models for schema migration.
// Order matters: conversations before the tables that reference them.
func RegisteredModels() []interface{} {
	return []interface{}{
		&models.Conversation{},
		&models.ConversationSettings{},
		&models.Membership{},
		&models.ThreadLink{},
	}
}

// Migrate applies the schema for all registered models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(RegisteredModels()...)
}
