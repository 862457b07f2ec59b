package database

import (
	"github.com/vericall/vericall/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Open connects to the sqlite database and migrates the schema.
// glebarez/sqlite is pure Go, so the binary builds with CGO_ENABLED=0.
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath+"?_loc=auto"), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Agent{},
		&models.Customer{},
		&models.MeetingSession{},
		&models.PushSubscription{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
