// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"pulsifi/internal/database"
	"pulsifi/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens a private in-memory database with the full schema applied.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	cfg := database.GormConfig()
	cfg.Logger = logger.Default.LogMode(logger.Silent)

	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql pool: %v", err)
	}
	// one connection keeps the shared-cache database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(database.PersistentModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// MustCreateGroups inserts the staff groups.
func MustCreateGroups(t testing.TB, db *gorm.DB) {
	t.Helper()
	for _, name := range models.StaffGroupNames {
		g := models.Group{Name: name}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&g).Error; err != nil {
			t.Fatalf("create group %s: %v", name, err)
		}
	}
}

// MustCreateUser inserts an active user directly, bypassing account rules.
func MustCreateUser(t testing.TB, db *gorm.DB, username string, mutate ...func(*models.User)) *models.User {
	t.Helper()
	u := &models.User{
		Username:   username,
		Email:      username + "@pulsifi.dev",
		IsActive:   true,
		DateJoined: time.Now(),
	}
	for _, fn := range mutate {
		fn(u)
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// MustJoinGroup adds u to the named group, creating the group when missing.
func MustJoinGroup(t testing.TB, db *gorm.DB, u *models.User, name string) {
	t.Helper()
	g := models.Group{Name: name}
	if err := db.Where(models.Group{Name: name}).FirstOrCreate(&g).Error; err != nil {
		t.Fatalf("group %s: %v", name, err)
	}
	if err := db.Table("user_groups").Clauses(clause.OnConflict{DoNothing: true}).
		Create(map[string]any{"user_id": u.ID, "group_id": g.ID}).Error; err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	u.Groups = append(u.Groups, g)
}

// MustCreatePulse inserts a visible pulse by creator.
func MustCreatePulse(t testing.TB, db *gorm.DB, creator *models.User, message string) *models.Pulse {
	t.Helper()
	p := &models.Pulse{CreatorID: creator.ID, Message: message, Visible: true}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create pulse: %v", err)
	}
	return p
}

// MustCreateReply inserts a visible reply under parent.
func MustCreateReply(t testing.TB, db *gorm.DB, creator *models.User, parent models.ObjectRef, message string) *models.Reply {
	t.Helper()
	r := &models.Reply{
		CreatorID:  creator.ID,
		Message:    message,
		Visible:    true,
		ParentType: parent.Type,
		ParentID:   parent.ID,
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("create reply: %v", err)
	}
	return r
}
