package migrations

import (
	"github.com/cityperks/backend/internal/models"
	"github.com/cityperks/backend/internal/queue"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// createLoyaltyTables creates the loyalty engine tables and the queue's
// jobs table.
var createLoyaltyTables = &gormigrate.Migration{
	ID: "000001_create_loyalty_tables",
	Migrate: func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&models.LoyaltyProgram{},
			&models.LoyaltyMembership{},
			&models.LoyaltyRedemption{},
			&models.LoyaltyPassRequest{},
			&models.LoyaltyEarnEvent{},
			&queue.Job{},
		)
	},
	Rollback: func(tx *gorm.DB) error {
		return tx.Migrator().DropTable(
			&queue.Job{},
			&models.LoyaltyEarnEvent{},
			&models.LoyaltyPassRequest{},
			&models.LoyaltyRedemption{},
			&models.LoyaltyMembership{},
			&models.LoyaltyProgram{},
		)
	},
}
