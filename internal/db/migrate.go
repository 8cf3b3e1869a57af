package db

import (
	"context"
	"fmt"
)

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	// gen_random_uuid() lives in pgcrypto on Postgres < 13.
	if err := p.gdb.WithContext(ctx).Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return fmt.Errorf("create pgcrypto extension: %w", err)
	}

	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}

	const startTimeIndex = `
CREATE INDEX IF NOT EXISTS idx_events_start_time ON events (start_time)
`
	if err := p.gdb.WithContext(ctx).Exec(startTimeIndex).Error; err != nil {
		return fmt.Errorf("create start_time index: %w", err)
	}

	return nil
}
