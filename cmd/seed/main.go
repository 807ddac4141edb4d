package main

import (
	"context"
	"fmt"
	"time"

	"github.com/coopledger/internal/cache"
	"github.com/coopledger/internal/config"
	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/provider"
	"github.com/coopledger/internal/service"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type seedFarm struct {
	farmer models.Farmer
	land   models.Land
}

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	if err := cache.InitRedis(&cfg.Redis); err != nil {
		stdLog.Printf("registry cache disabled: %v", err)
	}
	ctx := context.Background()

	// 合作社（重复执行时刷新名称与行政区划）
	cooperatives := []models.Cooperative{
		{Code: "DL-CUMGAR", Name: "Cu M'gar Coffee Cooperative", Province: "Dak Lak", District: "Cu M'gar"},
		{Code: "LD-CAUDAT", Name: "Cau Dat Arabica Cooperative", Province: "Lam Dong", District: "Da Lat"},
	}
	for i := range cooperatives {
		coop := &cooperatives[i]
		if err := models.DB.Where("code = ?", coop.Code).
			Assign(models.Cooperative{Name: coop.Name, Province: coop.Province, District: coop.District}).
			FirstOrCreate(coop).Error; err != nil {
			stdLog.Fatalf("Failed to seed cooperative %s: %v", coop.Code, err)
		}
		invalidateRegistry(ctx, cache.RegistryCooperative, coop.ID)
	}

	// 农户与地块
	joinedAt := time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)
	farms := []seedFarm{
		{
			farmer: models.Farmer{CooperativeID: cooperatives[0].ID, Code: "F-001", Name: "Y Blong Nie", Status: constants.FarmerStatusActive, JoinedAt: &joinedAt},
			land:   models.Land{Name: "Buon Ea Kmat", AreaHectares: models.NewQuantity(decimal.RequireFromString("2.5")), AltitudeMeters: 520, Variety: "Robusta"},
		},
		{
			farmer: models.Farmer{CooperativeID: cooperatives[0].ID, Code: "F-002", Name: "H'Hen Mlo", Status: constants.FarmerStatusActive, JoinedAt: &joinedAt},
			land:   models.Land{Name: "Ea Tul Hill", AreaHectares: models.NewQuantity(decimal.RequireFromString("1.75")), AltitudeMeters: 610, Variety: "Robusta"},
		},
		{
			farmer: models.Farmer{CooperativeID: cooperatives[1].ID, Code: "F-101", Name: "K'Sor Ha", Status: constants.FarmerStatusActive, JoinedAt: &joinedAt},
			land:   models.Land{Name: "Langbiang Slope", AreaHectares: models.NewQuantity(decimal.RequireFromString("1.2")), AltitudeMeters: 1450, Variety: "Catimor"},
		},
	}
	for i := range farms {
		farm := &farms[i]
		if err := models.DB.Where("cooperative_id = ? AND code = ?", farm.farmer.CooperativeID, farm.farmer.Code).
			FirstOrCreate(&farm.farmer).Error; err != nil {
			stdLog.Fatalf("Failed to seed farmer %s: %v", farm.farmer.Code, err)
		}
		invalidateRegistry(ctx, cache.RegistryFarmer, farm.farmer.ID)
		farm.land.FarmerID = farm.farmer.ID
		if err := models.DB.Where("farmer_id = ? AND name = ?", farm.land.FarmerID, farm.land.Name).
			Assign(models.Land{AreaHectares: farm.land.AreaHectares, AltitudeMeters: farm.land.AltitudeMeters, Variety: farm.land.Variety}).
			FirstOrCreate(&farm.land).Error; err != nil {
			stdLog.Fatalf("Failed to seed land %s: %v", farm.land.Name, err)
		}
		invalidateRegistry(ctx, cache.RegistryLand, farm.land.ID)
	}

	// 产量预估
	nextMonth := time.Now().UTC().AddDate(0, 1, 0)
	for _, farm := range farms {
		estimate := models.CultivationActivity{
			LandID:            farm.land.ID,
			FarmerID:          farm.farmer.ID,
			Type:              constants.ActivityHarvestEstimate,
			EstimatedDate:     &nextMonth,
			EstimatedQuantity: models.NewQuantityFromInt(1800),
			Notes:             "seed estimate",
		}
		if err := models.DB.Where("land_id = ? AND type = ?", estimate.LandID, estimate.Type).
			FirstOrCreate(&estimate).Error; err != nil {
			stdLog.Fatalf("Failed to seed activity: %v", err)
		}
	}

	// 台账演示：采收入库 -> 湿法加工
	container := provider.NewLedgerContainer(cfg, models.DB, nil)
	operator := service.Scope{Subject: "seed@" + cooperatives[0].Code, Role: constants.RoleCooperativeOperator, CooperativeID: cooperatives[0].ID}

	cherry, err := container.BatchService.Create(ctx, operator, service.CreateBatchInput{
		CooperativeID: cooperatives[0].ID,
		ProductType:   constants.ProductCherry,
		Unit:          constants.UnitKilogram,
	})
	if err != nil {
		stdLog.Fatalf("Failed to seed cherry batch: %v", err)
	}
	for _, farm := range farms[:2] {
		farmerID, landID := farm.farmer.ID, farm.land.ID
		if _, err := container.LedgerService.RecordReceipt(ctx, operator, service.ReceiptInput{
			BatchCode: cherry.Code,
			Quantity:  decimal.NewFromInt(600),
			FarmerID:  &farmerID,
			LandID:    &landID,
			Note:      "seed harvest",
		}); err != nil {
			stdLog.Fatalf("Failed to seed harvest receipt: %v", err)
		}
	}
	result, err := container.LedgerService.RecordTransformation(ctx, operator, service.TransformationInput{
		SourceBatchCode:   cherry.Code,
		SourceQuantityOut: decimal.NewFromInt(1000),
		Outputs:           []service.TransformationOutput{{Quantity: decimal.NewFromInt(820), ProductType: constants.ProductParchment}},
		Loss:              decimal.NewFromInt(180),
		Note:              "seed wet processing",
	})
	if err != nil {
		stdLog.Fatalf("Failed to seed transformation: %v", err)
	}
	parchmentCode := ""
	if len(result.CreatedBatches) > 0 {
		parchmentCode = result.CreatedBatches[0].Code
	}

	checkpoint := models.QualityCheckpoint{
		BatchCode:  parchmentCode,
		Stage:      "moisture",
		Score:      11.5,
		Passed:     true,
		Grader:     "seed-lab",
		Attributes: datatypes.JSON([]byte(`{"moisture_pct":11.5}`)),
		CheckedAt:  time.Now().UTC(),
	}
	if err := models.DB.Create(&checkpoint).Error; err != nil {
		stdLog.Fatalf("Failed to seed quality checkpoint: %v", err)
	}

	// 范围令牌
	scopes := []service.Scope{
		operator,
		{Subject: "analyst@dak-lak", Role: constants.RoleProvincialAnalyst, Province: cooperatives[0].Province},
		{Subject: "admin@national", Role: constants.RoleNationalAdmin},
	}
	fmt.Println("Seed completed.")
	fmt.Printf("cherry batch: %s, parchment batch: %s\n", cherry.Code, parchmentCode)
	for _, scope := range scopes {
		token, expiresAt, err := container.ScopeTokenService.Issue(scope)
		if err != nil {
			stdLog.Fatalf("Failed to issue token for %s: %v", scope.Subject, err)
		}
		fmt.Printf("%s (%s) expires %s\n  %s\n", scope.Subject, scope.Role, expiresAt.Format(time.RFC3339), token)
	}
}

// invalidateRegistry 登记数据被刷新后清掉 API 侧缓存的旧快照
func invalidateRegistry(ctx context.Context, kind string, id uint) {
	if err := cache.InvalidateRegistry(ctx, kind, id); err != nil {
		logger.Warnw("seed_registry_invalidate_failed", "kind", kind, "id", id, "error", err)
	}
}
