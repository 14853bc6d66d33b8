package main

import (
	"log"

	"soarify/internal/config"
	"soarify/internal/models"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	err = db.AutoMigrate(
		&models.Playbook{},
		&models.PlaybookStep{},
		&models.PlaybookExecution{},
		&models.WorkflowTrigger{},
		&models.PlaybookTemplate{},
		&models.NotificationChannel{},
		&models.NotificationTemplate{},
		&models.Notification{},
		&models.NotificationDelivery{},
		&models.SecurityAlert{},
		&models.Incident{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	log.Println("Creating additional indexes...")

	// Execution listings filter by playbook and status, newest first.
	db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_playbook_started ON playbook_executions(playbook_id, started_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_status_started ON playbook_executions(status, started_at)")

	// Trigger matching loads enabled triggers of one type ordered by priority.
	db.Exec("CREATE INDEX IF NOT EXISTS idx_triggers_type_enabled ON workflow_triggers(trigger_type, enabled)")

	// Delivery history joins notifications on their deliveries per channel.
	db.Exec("CREATE INDEX IF NOT EXISTS idx_deliveries_notification ON notification_deliveries(notification_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_deliveries_channel_status ON notification_deliveries(channel_id, status)")

	db.Exec("CREATE INDEX IF NOT EXISTS idx_playbooks_category ON playbooks(category)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_playbook_templates_category ON playbook_templates(category)")

	log.Println("Additional indexes created successfully!")
	log.Println("Migration process completed!")
}
