package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// createLoyaltyIndexes adds the partial unique index that enforces "at most
// one open submitted request per program". AutoMigrate cannot express
// partial indexes, so this is raw SQL.
var createLoyaltyIndexes = &gormigrate.Migration{
	ID: "000002_create_loyalty_indexes",
	Migrate: func(tx *gorm.DB) error {
		return tx.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS idx_loyalty_pass_requests_open
			ON loyalty_pass_requests (program_id)
			WHERE status = 'submitted' AND deleted_at IS NULL
		`).Error
	},
	Rollback: func(tx *gorm.DB) error {
		return tx.Exec("DROP INDEX IF EXISTS idx_loyalty_pass_requests_open").Error
	},
}
