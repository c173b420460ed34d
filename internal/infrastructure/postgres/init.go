package postgres

import (
	"log"

	"github.com/LavaJover/shvark-settlement-service/internal/config"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/postgres/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func MustInitDB(cfg *config.SettlementConfig) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.SettlementDB.Dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("failed to init db: %v\n", err.Error())
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v\n", err.Error())
	}
	sqlDB.SetMaxOpenConns(cfg.SettlementDB.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.SettlementDB.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.SettlementDB.ConnMaxLifetime)

	return db
}

// AutoMigrate creates the ledger tables from the gorm models. Production
// schemas come from the SQL migrations; this is for throwaway databases.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.PoolModel{}, &models.ContributionModel{}, &models.GatewayTransactionModel{})
}
