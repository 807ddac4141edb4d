package service

import (
	"context"
	"time"

	"github.com/coopledger/internal/cache"
	"github.com/coopledger/internal/logger"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/repository"
)

// RegistryLookup 登记参考数据读取（Redis 缓存可选）
// 说明：只缓存合作社/农户/地块快照，不缓存任何库存数据。
type RegistryLookup struct {
	repo repository.RegistryRepository
	ttl  time.Duration
}

// NewRegistryLookup 创建参考数据读取器
func NewRegistryLookup(repo repository.RegistryRepository, ttl time.Duration) *RegistryLookup {
	return &RegistryLookup{repo: repo, ttl: ttl}
}

// Cooperative 获取合作社
func (l *RegistryLookup) Cooperative(ctx context.Context, id uint) (*models.Cooperative, error) {
	if id == 0 {
		return nil, nil
	}
	var cached models.Cooperative
	if l.readCache(ctx, cache.RegistryCooperative, id, &cached) {
		return &cached, nil
	}
	cooperative, err := l.repo.WithContext(ctx).GetCooperative(id)
	if err != nil || cooperative == nil {
		return cooperative, err
	}
	l.writeCache(ctx, cache.RegistryCooperative, id, cooperative)
	return cooperative, nil
}

// Farmer 获取农户
func (l *RegistryLookup) Farmer(ctx context.Context, id uint) (*models.Farmer, error) {
	if id == 0 {
		return nil, nil
	}
	var cached models.Farmer
	if l.readCache(ctx, cache.RegistryFarmer, id, &cached) {
		return &cached, nil
	}
	farmer, err := l.repo.WithContext(ctx).GetFarmer(id)
	if err != nil || farmer == nil {
		return farmer, err
	}
	l.writeCache(ctx, cache.RegistryFarmer, id, farmer)
	return farmer, nil
}

// Land 获取地块
func (l *RegistryLookup) Land(ctx context.Context, id uint) (*models.Land, error) {
	if id == 0 {
		return nil, nil
	}
	var cached models.Land
	if l.readCache(ctx, cache.RegistryLand, id, &cached) {
		return &cached, nil
	}
	land, err := l.repo.WithContext(ctx).GetLand(id)
	if err != nil || land == nil {
		return land, err
	}
	l.writeCache(ctx, cache.RegistryLand, id, land)
	return land, nil
}

// CooperativeIDsByProvince 获取省份下的合作社ID
func (l *RegistryLookup) CooperativeIDsByProvince(ctx context.Context, province string) ([]uint, error) {
	return l.repo.WithContext(ctx).ListCooperativeIDsByProvince(province)
}

// QualityCheckpoints 获取批次质检记录
func (l *RegistryLookup) QualityCheckpoints(ctx context.Context, batchCode string) ([]models.QualityCheckpoint, error) {
	return l.repo.WithContext(ctx).ListQualityCheckpoints(batchCode)
}

func (l *RegistryLookup) readCache(ctx context.Context, kind string, id uint, dest interface{}) bool {
	hit, err := cache.GetRegistry(ctx, kind, id, dest)
	if err != nil {
		logger.Warnw("registry_cache_read_failed", "kind", kind, "id", id, "error", err)
		return false
	}
	return hit
}

func (l *RegistryLookup) writeCache(ctx context.Context, kind string, id uint, value interface{}) {
	if err := cache.SetRegistry(ctx, kind, id, value, l.ttl); err != nil {
		logger.Warnw("registry_cache_write_failed", "kind", kind, "id", id, "error", err)
	}
}
