package migrations

import (
	"fmt"

	"gorm.io/gorm"

	casepg "github.com/Apurer/worktrack/internal/domains/cases/adapters/persistence/postgres"
	eventpg "github.com/Apurer/worktrack/internal/domains/eventlog/adapters/persistence/postgres"
	projpg "github.com/Apurer/worktrack/internal/domains/projections/adapters/persistence/postgres"
	webhookpg "github.com/Apurer/worktrack/internal/domains/webhooks/adapters/persistence/postgres"
	wipg "github.com/Apurer/worktrack/internal/domains/workitems/adapters/persistence/postgres"
)

// shadowTables pairs every rebuildable read model table with its shadow.
var shadowTables = []struct{ live, shadow string }{
	{wipg.ItemsTable, wipg.ItemsShadowTable},
	{wipg.QueuesTable, wipg.QueuesShadowTable},
	{casepg.CasesTable, casepg.CasesShadowTable},
}

// Run applies the schema for every adapter. Shadow tables copy the live
// definition column for column; Promote copies rows with SELECT *.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	if err := db.AutoMigrate(
		&eventpg.EventRecord{},
		&projpg.CheckpointRecord{},
		&wipg.WorkItemRecord{},
		&wipg.QueueRecord{},
		&casepg.CaseRecord{},
		&webhookpg.ClaimRecord{},
		&webhookpg.SideEffectRecord{},
	); err != nil {
		return err
	}
	for _, t := range shadowTables {
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING DEFAULTS INCLUDING CONSTRAINTS INCLUDING INDEXES)", t.shadow, t.live)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create %s: %w", t.shadow, err)
		}
	}
	return db.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_work_items_queue ON %s (user_id, lens, queue_id)", wipg.ItemsTable)).Error
}
