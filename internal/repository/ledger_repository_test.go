package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repositoryFixture struct {
	db     *gorm.DB
	coop   models.Cooperative
	farmer models.Farmer
	land   models.Land
	batch  models.Batch
}

func setupLedgerRepositoryTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := models.MigrateAll(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

// seedRepositoryFixture 一个合作社、一个农户地块、一个原始批次，以及 3 月 600kg 与 4 月 400kg 两笔采收
func seedRepositoryFixture(t *testing.T, db *gorm.DB) *repositoryFixture {
	t.Helper()
	fx := &repositoryFixture{db: db}
	fx.coop = models.Cooperative{Code: "DL01", Name: "Dak Lak Highlands", Province: "Dak Lak"}
	if err := db.Create(&fx.coop).Error; err != nil {
		t.Fatalf("create cooperative failed: %v", err)
	}
	fx.farmer = models.Farmer{CooperativeID: fx.coop.ID, Name: "Y Bih", Status: constants.FarmerStatusActive}
	if err := db.Create(&fx.farmer).Error; err != nil {
		t.Fatalf("create farmer failed: %v", err)
	}
	fx.land = models.Land{FarmerID: fx.farmer.ID, Name: "North slope", AreaHectares: models.NewQuantity(decimal.RequireFromString("2.5"))}
	if err := db.Create(&fx.land).Error; err != nil {
		t.Fatalf("create land failed: %v", err)
	}
	fx.batch = models.Batch{Code: "CHERRY-001", CooperativeID: fx.coop.ID, ProductType: constants.ProductCherry, Unit: constants.UnitKilogram}
	if err := db.Create(&fx.batch).Error; err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	entries := []models.LedgerTransaction{
		fx.entry(constants.TxnKindReceipt, constants.OperationHarvest, "600", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		fx.entry(constants.TxnKindReceipt, constants.OperationHarvest, "400", time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)),
	}
	if err := NewLedgerRepository(db).CreateMany(entries); err != nil {
		t.Fatalf("create entries failed: %v", err)
	}
	return fx
}

func (fx *repositoryFixture) entry(kind, operation, delta string, date time.Time) models.LedgerTransaction {
	entry := models.LedgerTransaction{
		BatchID:       fx.batch.ID,
		BatchCode:     fx.batch.Code,
		CooperativeID: fx.coop.ID,
		Kind:          kind,
		Operation:     operation,
		QuantityDelta: models.NewQuantity(decimal.RequireFromString(delta)),
		Date:          date,
		OperationRef:  fmt.Sprintf("OP-%s-%s", kind, date.Format("20060102")),
		CreatedBy:     "fixture",
	}
	if kind == constants.TxnKindReceipt {
		farmerID := fx.farmer.ID
		landID := fx.land.ID
		entry.FarmerID = &farmerID
		entry.LandID = &landID
	}
	return entry
}

func TestBatchRepositoryLookups(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	fx := seedRepositoryFixture(t, db)
	repo := NewBatchRepository(db)

	parent := fx.batch.Code
	child := models.Batch{Code: "PARCH-001", CooperativeID: fx.coop.ID, ProductType: constants.ProductParchment, Unit: constants.UnitKilogram, ParentBatchCode: &parent}
	if err := repo.Create(&child); err != nil {
		t.Fatalf("create child failed: %v", err)
	}

	missing, err := repo.GetByCode("NOPE")
	if err != nil || missing != nil {
		t.Fatalf("missing batch should return nil, nil; got %v, %v", missing, err)
	}
	found, err := repo.GetByCode(" PARCH-001 ")
	if err != nil || found == nil || found.ParentCode() != "CHERRY-001" {
		t.Fatalf("unexpected lookup: %+v, %v", found, err)
	}

	children, err := repo.ListChildren("CHERRY-001")
	if err != nil || len(children) != 1 || children[0].Code != "PARCH-001" {
		t.Fatalf("unexpected children: %+v, %v", children, err)
	}
	origins, total, err := repo.List(BatchListFilter{CooperativeID: fx.coop.ID, OnlyOrigin: true, Page: 1, PageSize: 10})
	if err != nil || total != 1 || origins[0].Code != "CHERRY-001" {
		t.Fatalf("unexpected origin list: %+v (%d), %v", origins, total, err)
	}
	byCodes, err := repo.GetByCodes([]string{"CHERRY-001", "PARCH-001", "NOPE"})
	if err != nil || len(byCodes) != 2 {
		t.Fatalf("unexpected batch lookup by codes: %d, %v", len(byCodes), err)
	}
	all, err := repo.ListAll(0)
	if err != nil || len(all) != 2 {
		t.Fatalf("unexpected list all: %d, %v", len(all), err)
	}
}

func TestLedgerRepositoryQueries(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	fx := seedRepositoryFixture(t, db)
	repo := NewLedgerRepository(db)

	entries, err := repo.ListByBatch(fx.batch.ID, nil)
	if err != nil || len(entries) != 2 {
		t.Fatalf("unexpected entries: %d, %v", len(entries), err)
	}
	original := entries[0]
	reversalOf := original.ID
	reversal := fx.entry(constants.TxnKindAdjustment, constants.OperationHarvest, "-600", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	reversal.ReversalOfID = &reversalOf
	if err := repo.Create(&reversal); err != nil {
		t.Fatalf("create reversal failed: %v", err)
	}

	found, err := repo.GetReversalOf(original.ID)
	if err != nil || found == nil || found.ID != reversal.ID {
		t.Fatalf("unexpected reversal lookup: %+v, %v", found, err)
	}
	none, err := repo.GetReversalOf(reversal.ID)
	if err != nil || none != nil {
		t.Fatalf("entry without reversal should return nil, got %+v, %v", none, err)
	}

	asOf := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	march, err := repo.ListByBatch(fx.batch.ID, &asOf)
	if err != nil || len(march) != 2 {
		t.Fatalf("want 2 entries up to March 31, got %d, %v", len(march), err)
	}
	if march[1].ID != reversal.ID {
		t.Fatalf("entries should be ordered by business date")
	}

	receipts, total, err := repo.WithContext(context.Background()).List(TransactionListFilter{
		BatchID:  fx.batch.ID,
		Kind:     constants.TxnKindReceipt,
		Page:     1,
		PageSize: 10,
	})
	if err != nil || total != 2 || len(receipts) != 2 {
		t.Fatalf("unexpected receipt list: %d, %v", total, err)
	}

	transforms := []models.LedgerTransaction{
		fx.entry(constants.TxnKindTransformOut, constants.OperationTransformation, "-100", time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)),
		fx.entry(constants.TxnKindTransformOut, constants.OperationProcessingLoss, "-20", time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)),
	}
	if err := repo.CreateMany(transforms); err != nil {
		t.Fatalf("create transforms failed: %v", err)
	}
	refs, err := repo.ListTransformOperationRefs()
	if err != nil || len(refs) != 1 {
		t.Fatalf("want 1 transform operation ref, got %v, %v", refs, err)
	}
	byRef, err := repo.ListByOperationRefs(refs)
	if err != nil || len(byRef) != 2 {
		t.Fatalf("want 2 entries for operation ref, got %d, %v", len(byRef), err)
	}
}

func TestLedgerRepositoryTransactionRollsBack(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	fx := seedRepositoryFixture(t, db)
	repo := NewLedgerRepository(db)

	err := repo.Transaction(context.Background(), func(tx *gorm.DB) error {
		if err := repo.WithTx(tx).Create(&models.LedgerTransaction{
			BatchID:       fx.batch.ID,
			BatchCode:     fx.batch.Code,
			CooperativeID: fx.coop.ID,
			Kind:          constants.TxnKindDispatch,
			Operation:     constants.OperationSale,
			QuantityDelta: models.NewQuantity(decimal.NewFromInt(-1)),
			Date:          time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
			OperationRef:  "OP-ROLLBACK",
		}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	if err == nil {
		t.Fatalf("transaction should return callback error")
	}
	entries, err := repo.ListByBatch(fx.batch.ID, nil)
	if err != nil || len(entries) != 2 {
		t.Fatalf("rolled back entry should not persist, got %d, %v", len(entries), err)
	}
}

func TestAggregationRepositorySQLite(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	fx := seedRepositoryFixture(t, db)
	repo := NewAggregationRepository(db)

	months, err := repo.SumHarvest(constants.RollupLevelMonth, RollupQuery{})
	if err != nil {
		t.Fatalf("sum harvest by month failed: %v", err)
	}
	if len(months) != 2 || months[0].GroupKey != "2026-03" || months[0].MetricValue != 600 || months[1].MetricValue != 400 {
		t.Fatalf("unexpected month rows: %+v", months)
	}

	lands, err := repo.SumHarvest(constants.RollupLevelLand, RollupQuery{})
	if err != nil {
		t.Fatalf("sum harvest by land failed: %v", err)
	}
	if len(lands) != 1 || lands[0].GroupKey != fmt.Sprint(fx.land.ID) || lands[0].GroupLabel != "North slope" {
		t.Fatalf("unexpected land rows: %+v", lands)
	}

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	nation, err := repo.SumHarvest(constants.RollupLevelNation, RollupQuery{DateFrom: &from})
	if err != nil {
		t.Fatalf("sum harvest by nation failed: %v", err)
	}
	if len(nation) != 1 || nation[0].GroupKey != constants.RollupNationKey || nation[0].MetricValue != 400 {
		t.Fatalf("unexpected nation rows: %+v", nation)
	}

	// 范围内无数据时不返回全国汇总行
	empty, err := repo.SumHarvest(constants.RollupLevelNation, RollupQuery{Province: "Gia Lai"})
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty scope should return no rows, got %+v, %v", empty, err)
	}

	farmers, err := repo.CountActiveFarmers(constants.RollupLevelCooperative, RollupQuery{CooperativeIDs: []uint{fx.coop.ID}})
	if err != nil || len(farmers) != 1 || farmers[0].MetricValue != 1 {
		t.Fatalf("unexpected active farmer rows: %+v, %v", farmers, err)
	}

	area, err := repo.SumLandArea(constants.RollupLevelFarmer, RollupQuery{})
	if err != nil || len(area) != 1 || area[0].MetricValue != 2.5 {
		t.Fatalf("unexpected land area rows: %+v, %v", area, err)
	}
	if _, err := repo.SumLandArea(constants.RollupLevelMonth, RollupQuery{}); err == nil {
		t.Fatalf("land area by month should be rejected")
	}
}

func TestAggregationRepositoryHarvestEstimates(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	fx := seedRepositoryFixture(t, db)
	repo := NewAggregationRepository(db)

	for _, item := range []struct {
		date     time.Time
		quantity string
		kind     string
	}{
		{time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC), "300", constants.ActivityHarvestEstimate},
		{time.Date(2026, 5, 25, 0, 0, 0, 0, time.UTC), "200", constants.ActivityHarvestEstimate},
		{time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC), "900", constants.ActivityHarvestEstimate},
		{time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), "50", "fertilizing"},
	} {
		date := item.date
		activity := models.CultivationActivity{
			LandID:            fx.land.ID,
			FarmerID:          fx.farmer.ID,
			Type:              item.kind,
			EstimatedDate:     &date,
			EstimatedQuantity: models.NewQuantity(decimal.RequireFromString(item.quantity)),
		}
		if err := db.Create(&activity).Error; err != nil {
			t.Fatalf("create activity failed: %v", err)
		}
	}

	rows, err := repo.SumHarvestEstimates(
		time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		RollupQuery{Province: "Dak Lak"},
	)
	if err != nil {
		t.Fatalf("sum harvest estimates failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Month != "2026-05" || rows[0].EstimatedKg != 500 {
		t.Fatalf("unexpected estimate rows: %+v", rows)
	}
}

func TestRegistryRepository(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	fx := seedRepositoryFixture(t, db)
	repo := NewRegistryRepository(db)

	missing, err := repo.GetCooperative(9999)
	if err != nil || missing != nil {
		t.Fatalf("missing cooperative should return nil, nil; got %v, %v", missing, err)
	}
	ids, err := repo.ListCooperativeIDsByProvince(" Dak Lak ")
	if err != nil || len(ids) != 1 || ids[0] != fx.coop.ID {
		t.Fatalf("unexpected cooperative ids: %v, %v", ids, err)
	}
	land, err := repo.GetLand(fx.land.ID)
	if err != nil || land == nil || land.FarmerID != fx.farmer.ID {
		t.Fatalf("unexpected land: %+v, %v", land, err)
	}

	checkpoint := models.QualityCheckpoint{BatchCode: fx.batch.Code, Stage: "moisture", Score: 11.5, Passed: true, CheckedAt: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)}
	if err := db.Create(&checkpoint).Error; err != nil {
		t.Fatalf("create checkpoint failed: %v", err)
	}
	checkpoints, err := repo.ListQualityCheckpoints(fx.batch.Code)
	if err != nil || len(checkpoints) != 1 || checkpoints[0].Stage != "moisture" {
		t.Fatalf("unexpected checkpoints: %+v, %v", checkpoints, err)
	}
}
