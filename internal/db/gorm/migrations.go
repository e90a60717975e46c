package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_authors",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Author{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("authors")
			},
		},
		{
			ID: "002_score_observations",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ScoreObservation{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("score_observations")
			},
		},
	})

	return m.Migrate()
}
