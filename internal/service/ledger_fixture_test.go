package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/coopledger/internal/config"
	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/metrics"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ledgerFixture struct {
	db          *gorm.DB
	batches     *BatchService
	stock       *StockService
	ledger      *LedgerService
	lineage     *LineageService
	trace       *TraceabilityService
	aggregation *AggregationService
	integrity   *IntegrityService

	coop      models.Cooperative
	otherCoop models.Cooperative
	farmer    models.Farmer
	land      models.Land
}

func setupLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := models.MigrateAll(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	m := metrics.New(nil)
	batchRepo := repository.NewBatchRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	registry := NewRegistryLookup(repository.NewRegistryRepository(db), time.Minute)
	retrier := NewWriteRetrier(config.RetryConfig{MaxAttempts: 3, InitialIntervalMS: 1, MaxIntervalMS: 5}, m)
	lineage := NewLineageService(batchRepo, ledgerRepo, registry, m, 16)

	f := &ledgerFixture{
		db:          db,
		batches:     NewBatchService(batchRepo, ledgerRepo, registry, retrier),
		stock:       NewStockService(batchRepo, ledgerRepo, registry),
		ledger:      NewLedgerService(batchRepo, ledgerRepo, registry, retrier, m),
		lineage:     lineage,
		trace:       NewTraceabilityService(batchRepo, ledgerRepo, registry, lineage, m),
		aggregation: NewAggregationService(repository.NewAggregationRepository(db), m),
		integrity:   NewIntegrityService(batchRepo, ledgerRepo, lineage, m),
	}
	f.coop = createTestCooperative(t, db, "DL01", "Dak Lak Highlands", "Dak Lak")
	f.otherCoop = createTestCooperative(t, db, "LD01", "Lam Dong Arabica", "Lam Dong")
	f.farmer = createTestFarmer(t, db, f.coop.ID, "Y Bih")
	f.land = createTestLand(t, db, f.farmer.ID, "North slope", "2.5")
	return f
}

func createTestCooperative(t *testing.T, db *gorm.DB, code, name, province string) models.Cooperative {
	t.Helper()
	coop := models.Cooperative{Code: code, Name: name, Province: province}
	if err := db.Create(&coop).Error; err != nil {
		t.Fatalf("create cooperative failed: %v", err)
	}
	return coop
}

func createTestFarmer(t *testing.T, db *gorm.DB, cooperativeID uint, name string) models.Farmer {
	t.Helper()
	farmer := models.Farmer{CooperativeID: cooperativeID, Name: name, Status: constants.FarmerStatusActive}
	if err := db.Create(&farmer).Error; err != nil {
		t.Fatalf("create farmer failed: %v", err)
	}
	return farmer
}

func createTestLand(t *testing.T, db *gorm.DB, farmerID uint, name, area string) models.Land {
	t.Helper()
	land := models.Land{FarmerID: farmerID, Name: name, AreaHectares: models.NewQuantity(decimal.RequireFromString(area))}
	if err := db.Create(&land).Error; err != nil {
		t.Fatalf("create land failed: %v", err)
	}
	return land
}

func operatorScope(cooperativeID uint) Scope {
	return Scope{Subject: "operator@test", Role: constants.RoleCooperativeOperator, CooperativeID: cooperativeID}
}

func analystScope(province string) Scope {
	return Scope{Subject: "analyst@test", Role: constants.RoleProvincialAnalyst, Province: province}
}

func adminScope() Scope {
	return Scope{Subject: "admin@test", Role: constants.RoleNationalAdmin}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func qty(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func (f *ledgerFixture) mustCreateBatch(t *testing.T, code, productType, parent string) *models.Batch {
	t.Helper()
	batch, err := f.batches.Create(context.Background(), operatorScope(f.coop.ID), CreateBatchInput{
		Code:          code,
		CooperativeID: f.coop.ID,
		ProductType:   productType,
		ParentCode:    parent,
	})
	if err != nil {
		t.Fatalf("create batch %s failed: %v", code, err)
	}
	return batch
}

func (f *ledgerFixture) mustHarvest(t *testing.T, code, quantity string, date time.Time) *models.LedgerTransaction {
	t.Helper()
	landID := f.land.ID
	entry, err := f.ledger.RecordReceipt(context.Background(), operatorScope(f.coop.ID), ReceiptInput{
		BatchCode: code,
		Quantity:  qty(quantity),
		Date:      date,
		LandID:    &landID,
	})
	if err != nil {
		t.Fatalf("record harvest on %s failed: %v", code, err)
	}
	return entry
}

func (f *ledgerFixture) mustStock(t *testing.T, code string) *StockView {
	t.Helper()
	view, err := f.stock.CurrentStock(context.Background(), adminScope(), code)
	if err != nil {
		t.Fatalf("current stock of %s failed: %v", code, err)
	}
	return view
}

func assertQuantity(t *testing.T, label string, got models.Quantity, want string) {
	t.Helper()
	if !got.Decimal.Equal(qty(want)) {
		t.Fatalf("%s: want %s, got %s", label, want, got.String())
	}
}
