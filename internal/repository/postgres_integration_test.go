//go:build integration
// +build integration

package repository

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.LedgerTransaction{},
		&models.Batch{},
		&models.QualityCheckpoint{},
		&models.CultivationActivity{},
		&models.Land{},
		&models.Farmer{},
		&models.Cooperative{},
		&models.AuthzAuditLog{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := models.MigrateAll(db); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresLedgerRepositories(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	fx := seedRepositoryFixture(t, db)

	batchRepo := NewBatchRepository(db)
	ledgerRepo := NewLedgerRepository(db)
	err := ledgerRepo.Transaction(context.Background(), func(tx *gorm.DB) error {
		locked, err := batchRepo.WithTx(tx).GetByCodeForUpdate(fx.batch.Code)
		if err != nil {
			return err
		}
		if locked == nil || locked.ID != fx.batch.ID {
			t.Fatalf("locked batch mismatch: %+v", locked)
		}
		return ledgerRepo.WithTx(tx).CreateMany([]models.LedgerTransaction{
			fx.entry(constants.TxnKindDispatch, constants.OperationSale, "-100", time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)),
		})
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	asOf := time.Date(2026, 3, 25, 0, 0, 0, 0, time.UTC)
	entries, err := ledgerRepo.ListByBatch(fx.batch.ID, &asOf)
	if err != nil {
		t.Fatalf("list by batch failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 entries up to as_of, got %d", len(entries))
	}
}

func TestPostgresAggregationMonthBucket(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	seedRepositoryFixture(t, db)

	repo := NewAggregationRepository(db)
	rows, err := repo.SumHarvest(constants.RollupLevelMonth, RollupQuery{})
	if err != nil {
		t.Fatalf("sum harvest failed: %v", err)
	}
	if len(rows) != 2 || rows[0].GroupKey != "2026-03" || rows[1].GroupKey != "2026-04" {
		t.Fatalf("unexpected month buckets: %+v", rows)
	}
	if !decimal.NewFromFloat(rows[0].MetricValue).Equal(decimal.NewFromInt(600)) {
		t.Fatalf("unexpected March harvest: %v", rows[0].MetricValue)
	}

	cooperatives, err := repo.SumHarvest(constants.RollupLevelCooperative, RollupQuery{})
	if err != nil {
		t.Fatalf("sum harvest by cooperative failed: %v", err)
	}
	if len(cooperatives) != 1 || cooperatives[0].GroupLabel != "Dak Lak Highlands" {
		t.Fatalf("unexpected cooperative rows: %+v", cooperatives)
	}
}
