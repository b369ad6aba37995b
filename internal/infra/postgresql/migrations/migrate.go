package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notification-hub/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createNotificationConfigsTable(),
		createTemplatesTable(),
		createScheduledJobsTable(),
		createFailureTables(),
		createUnsentMessagesTable(),
	})
	return m.Migrate()
}

func createNotificationConfigsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_notification_configs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationConfigModel{}); err != nil {
				return err
			}
			indexes := []string{
				// one active config per client and channel
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_configs_active_client_channel ON notification_configs (client_name, channel) WHERE active`,
				`CREATE INDEX IF NOT EXISTS idx_configs_client_name ON notification_configs (client_name)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationConfigModel{})
		},
	}
}

func createTemplatesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_templates",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.TemplateModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TemplateModel{})
		},
	}
}

func createScheduledJobsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_scheduled_jobs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ScheduledJobModel{}); err != nil {
				return err
			}
			// serves the claim subquery: candidates by status and lease age
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_scheduled_jobs_claimable ON scheduled_jobs (status, picked_at) WHERE active`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ScheduledJobModel{})
		},
	}
}

func createFailureTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_failure_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.FailedDeliveryModel{}); err != nil {
				return err
			}
			if err := tx.AutoMigrate(&repository.FailedAttachmentModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_failed_deliveries_created ON failed_deliveries (created_at DESC)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			if err := tx.Migrator().DropTable(&repository.FailedDeliveryModel{}); err != nil {
				return err
			}
			return tx.Migrator().DropTable(&repository.FailedAttachmentModel{})
		},
	}
}

func createUnsentMessagesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_unsent_messages",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.UnsentMessageModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_unsent_messages_created ON unsent_messages (created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.UnsentMessageModel{})
		},
	}
}
