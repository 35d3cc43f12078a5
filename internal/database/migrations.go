package database

import (
	"fmt"

	"gorm.io/gorm"
)

// RunMigrations executes the migrations AutoMigrate cannot express
func RunMigrations(db *gorm.DB) error {
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	// Bill lines are read per case in date order
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_work_items_case_date
		ON work_items(case_id, date)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_disbursements_case_date
		ON disbursements(case_id, date)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_rate_entries_lookup
		ON rate_entries(case_ref, grade, fee_earner_id)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_bill_logs_time
		ON bill_logs(generated_at)
	`).Error; err != nil {
		return err
	}

	return nil
}
