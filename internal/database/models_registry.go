package database

import "pulsifi/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Group{},
		&models.EmailAddress{},
		&models.Follow{},
		&models.Pulse{},
		&models.Reply{},
		&models.Reaction{},
		&models.Report{},
	}
}
