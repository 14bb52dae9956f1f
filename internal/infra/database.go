package infra

import (
	"fmt"

	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate for
// the engine's tables, then applies the idempotent PostgreSQL patches GORM cannot
// express (partial unique indexes backing the one-job-per-bay and one-open-drawer-per-branch rules).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Models lists every table the engine migrates, leaf tables first.
func Models() []any {
	return []any{
		&model.Branch{},
		&model.Service{},
		&model.ServicePricing{},
		&model.Customer{},
		&model.Vehicle{},
		&model.Bay{},
		&model.Job{},
		&model.JobService{},
		&model.JobSequence{},
		&model.Payment{},
		&model.CashSession{},
		&model.CashMovement{},
		&model.Expense{},
		&model.LoyaltyTransaction{},
		&model.ActivityLog{},
	}
}

// RunMigrations creates/updates the schema. Works on any dialect; the
// PostgreSQL-only patches are skipped elsewhere (SQLite in tests).
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches runs idempotent DDL statements that GORM AutoMigrate cannot
// express. Each one is guarded with IF NOT EXISTS so re-running is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// At most one open drawer per branch.
		{"one open cash session per branch", `
CREATE UNIQUE INDEX IF NOT EXISTS uq_cash_sessions_open_branch
    ON cash_sessions (branch_id)
    WHERE status = 'open'`},
		// A bay is referenced by at most one job in the active range.
		{"one active job per bay", `
CREATE UNIQUE INDEX IF NOT EXISTS uq_jobs_active_bay
    ON jobs (bay_id)
    WHERE bay_id IS NOT NULL
      AND status IN ('checked_in', 'in_queue', 'washing', 'detailing')`},
		{"one bay per current job", `
CREATE UNIQUE INDEX IF NOT EXISTS uq_bays_current_job
    ON bays (current_job_id)
    WHERE current_job_id IS NOT NULL`},
		// Reconciliation sweep scans this.
		{"pending mobile payments", `
CREATE INDEX IF NOT EXISTS idx_payments_pending_mpesa
    ON payments (created_at)
    WHERE status = 'pending' AND method = 'mpesa'`},
		{"final amount never negative", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_jobs_final_amount') THEN
    ALTER TABLE jobs ADD CONSTRAINT chk_jobs_final_amount
      CHECK (final_amount >= 0 AND final_amount = total_amount - discount_amount);
  END IF;
END $$`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
