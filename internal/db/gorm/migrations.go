package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Photo tracking tables
		{
			ID: "001_photo_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&PhotoSession{}, &Photo{}, &PhotoAnalysis{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("photo_analyses", "photos", "photo_sessions")
			},
		},

		// Migration 002: Chat history
		{
			ID: "002_chat_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Conversation{}, &Message{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("messages", "conversations")
			},
		},

		// Migration 003: Deep dive interviews
		{
			ID: "003_deep_dive_sessions",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&DeepDiveSession{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("deep_dive_sessions")
			},
		},

		// Migration 004: Weekly insight briefs
		{
			ID: "004_weekly_insights",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&WeeklyInsight{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("weekly_insights")
			},
		},

		// Migration 005: Optimistic locking of deep dives
		{
			ID: "005_deep_dive_version",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasColumn(&DeepDiveSession{}, "Version") {
					return nil
				}
				return tx.Migrator().AddColumn(&DeepDiveSession{}, "Version")
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropColumn(&DeepDiveSession{}, "Version")
			},
		},
	})

	return m.Migrate()
}
