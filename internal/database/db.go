package database

import (
	"log"

	"chat-monitor/internal/config"
	"chat-monitor/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB opens the database and runs auto-migration. SQLite is the default;
// a PostgreSQL DSN in config switches drivers.
func InitDB(cfg *config.Config) {
	var err error

	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	if cfg.PostgresDSN != "" {
		DB, err = gorm.Open(postgres.Open(cfg.PostgresDSN), gormCfg)
	} else {
		DB, err = gorm.Open(sqlite.Open(cfg.DBPath), gormCfg)
	}
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	err = DB.AutoMigrate(
		&models.KeywordSet{},
		&models.MonitoredGroup{},
		&models.TriggerRule{},
		&models.MonitoringAccount{},
		&models.ChatTemplate{},
		&models.Lead{},
		&models.TriggerLedgerEntry{},
	)
	if err != nil {
		log.Fatalf("Failed to run auto-migration: %v", err)
	}

	log.Println("Database initialized (keyword_sets, monitored_groups, trigger_rules, monitoring_accounts, chat_templates, leads, trigger_ledger)")
}
