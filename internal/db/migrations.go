package db

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: the event timeline.
		{
			ID: "001_event_timeline",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&EventRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("health_events")
			},
		},

		// Migration 002: the incremental concept graph.
		{
			ID: "002_concept_graph",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&GraphNodeRecord{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&GraphEdgeRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("graph_nodes", "graph_edges")
			},
		},

		// Migration 003: score history and alerts.
		{
			ID: "003_scores_and_alerts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&HSIScoreRecord{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&AlertRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("hsi_scores", "user_alerts")
			},
		},
	})

	return m.Migrate()
}
