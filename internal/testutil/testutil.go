// Package testutil provides an in-memory sqlite database for service tests.
// Tables are created with raw sqlite-compatible DDL instead of AutoMigrate,
// because the model tags carry postgres-specific defaults like
// gen_random_uuid().
package testutil

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB opens a fresh in-memory database with the loyalty schema
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// One connection so every goroutine sees the same in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get test database connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create test schema: %v", err)
		}
	}
	return db
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS "loyalty_programs" (
		"id" TEXT PRIMARY KEY,
		"created_at" DATETIME,
		"updated_at" DATETIME,
		"deleted_at" DATETIME,
		"public_id" TEXT NOT NULL UNIQUE,
		"business_id" TEXT NOT NULL UNIQUE,
		"city" TEXT NOT NULL,
		"type" TEXT NOT NULL DEFAULT 'stamps',
		"reward_threshold" INTEGER NOT NULL,
		"reward_description" TEXT,
		"stamp_label" TEXT,
		"stamp_icon" TEXT,
		"earn_instructions" TEXT,
		"earn_mode" TEXT DEFAULT 'counter_scan',
		"brand_color" TEXT,
		"brand_background" TEXT,
		"logo_url" TEXT,
		"strip_image_url" TEXT,
		"wallet_push_template_id" TEXT,
		"wallet_push_api_key" TEXT,
		"wallet_push_endpoint" TEXT,
		"counter_qr_token" TEXT,
		"previous_counter_qr_token" TEXT,
		"counter_qr_token_rotated_at" DATETIME,
		"status" TEXT NOT NULL DEFAULT 'draft',
		"ended_at" DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loyalty_programs_deleted_at ON "loyalty_programs"("deleted_at")`,
	`CREATE INDEX IF NOT EXISTS idx_loyalty_programs_status ON "loyalty_programs"("status")`,

	`CREATE TABLE IF NOT EXISTS "loyalty_memberships" (
		"id" TEXT PRIMARY KEY,
		"created_at" DATETIME,
		"updated_at" DATETIME,
		"deleted_at" DATETIME,
		"program_id" TEXT NOT NULL,
		"user_wallet_pass_id" TEXT NOT NULL,
		"stamps_balance" INTEGER NOT NULL DEFAULT 0,
		"points_balance" INTEGER NOT NULL DEFAULT 0,
		"wallet_push_serial" TEXT,
		"status" TEXT NOT NULL DEFAULT 'active',
		"last_active_at" DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_loyalty_membership_program_visitor
		ON "loyalty_memberships"("program_id", "user_wallet_pass_id")`,
	`CREATE INDEX IF NOT EXISTS idx_loyalty_memberships_deleted_at ON "loyalty_memberships"("deleted_at")`,

	`CREATE TABLE IF NOT EXISTS "loyalty_redemptions" (
		"id" TEXT PRIMARY KEY,
		"created_at" DATETIME,
		"updated_at" DATETIME,
		"deleted_at" DATETIME,
		"membership_id" TEXT NOT NULL,
		"business_id" TEXT NOT NULL,
		"user_wallet_pass_id" TEXT NOT NULL,
		"reward_description" TEXT NOT NULL,
		"status" TEXT NOT NULL DEFAULT 'redeemed',
		"consumed_at" DATETIME NOT NULL,
		"display_expires_at" DATETIME NOT NULL,
		"pass_reset_at" DATETIME,
		"flagged_at" DATETIME,
		"flagged_reason" TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loyalty_redemptions_deleted_at ON "loyalty_redemptions"("deleted_at")`,
	`CREATE INDEX IF NOT EXISTS idx_loyalty_redemptions_display_expires_at ON "loyalty_redemptions"("display_expires_at")`,

	`CREATE TABLE IF NOT EXISTS "loyalty_pass_requests" (
		"id" TEXT PRIMARY KEY,
		"created_at" DATETIME,
		"updated_at" DATETIME,
		"deleted_at" DATETIME,
		"program_id" TEXT NOT NULL,
		"business_id" TEXT NOT NULL,
		"city" TEXT NOT NULL,
		"status" TEXT NOT NULL DEFAULT 'submitted',
		"rejection_reason" TEXT,
		"reviewed_by_admin_id" TEXT,
		"reviewed_at" DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_loyalty_pass_requests_open
		ON "loyalty_pass_requests"("program_id")
		WHERE "status" = 'submitted' AND "deleted_at" IS NULL`,

	`CREATE TABLE IF NOT EXISTS "loyalty_earn_events" (
		"id" TEXT PRIMARY KEY,
		"membership_id" TEXT NOT NULL,
		"amount" INTEGER NOT NULL,
		"balance_after" INTEGER NOT NULL,
		"source" TEXT,
		"created_at" DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loyalty_earn_events_membership_id ON "loyalty_earn_events"("membership_id")`,

	`CREATE TABLE IF NOT EXISTS "jobs" (
		"id" TEXT PRIMARY KEY,
		"type" TEXT NOT NULL,
		"payload" TEXT,
		"status" TEXT NOT NULL DEFAULT 'pending',
		"retry_count" INTEGER DEFAULT 0,
		"max_retries" INTEGER NOT NULL,
		"next_retry" DATETIME,
		"error" TEXT,
		"created_at" DATETIME,
		"updated_at" DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON "jobs"("status")`,
}
