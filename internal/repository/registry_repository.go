package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/coopledger/internal/models"

	"gorm.io/gorm"
)

// RegistryRepository 登记参考数据只读接口（合作社/农户/地块/质检）
type RegistryRepository interface {
	WithContext(ctx context.Context) RegistryRepository
	GetCooperative(id uint) (*models.Cooperative, error)
	ListCooperativeIDsByProvince(province string) ([]uint, error)
	GetFarmer(id uint) (*models.Farmer, error)
	GetLand(id uint) (*models.Land, error)
	ListQualityCheckpoints(batchCode string) ([]models.QualityCheckpoint, error)
}

// GormRegistryRepository GORM 参考数据仓储实现
type GormRegistryRepository struct {
	db *gorm.DB
}

// NewRegistryRepository 创建参考数据仓储
func NewRegistryRepository(db *gorm.DB) *GormRegistryRepository {
	return &GormRegistryRepository{db: db}
}

// WithContext 绑定请求上下文
func (r *GormRegistryRepository) WithContext(ctx context.Context) RegistryRepository {
	if ctx == nil {
		return r
	}
	return &GormRegistryRepository{db: r.db.WithContext(ctx)}
}

// GetCooperative 按ID获取合作社
func (r *GormRegistryRepository) GetCooperative(id uint) (*models.Cooperative, error) {
	if id == 0 {
		return nil, nil
	}
	var cooperative models.Cooperative
	if err := r.db.First(&cooperative, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cooperative, nil
}

// ListCooperativeIDsByProvince 获取省份下的合作社ID
func (r *GormRegistryRepository) ListCooperativeIDsByProvince(province string) ([]uint, error) {
	province = strings.TrimSpace(province)
	if province == "" {
		return []uint{}, nil
	}
	var ids []uint
	if err := r.db.Model(&models.Cooperative{}).
		Where("province = ?", province).
		Order("id asc").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// GetFarmer 按ID获取农户
func (r *GormRegistryRepository) GetFarmer(id uint) (*models.Farmer, error) {
	if id == 0 {
		return nil, nil
	}
	var farmer models.Farmer
	if err := r.db.First(&farmer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &farmer, nil
}

// GetLand 按ID获取地块
func (r *GormRegistryRepository) GetLand(id uint) (*models.Land, error) {
	if id == 0 {
		return nil, nil
	}
	var land models.Land
	if err := r.db.First(&land, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &land, nil
}

// ListQualityCheckpoints 获取批次的质检记录
func (r *GormRegistryRepository) ListQualityCheckpoints(batchCode string) ([]models.QualityCheckpoint, error) {
	batchCode = strings.TrimSpace(batchCode)
	if batchCode == "" {
		return []models.QualityCheckpoint{}, nil
	}
	var checkpoints []models.QualityCheckpoint
	if err := r.db.Where("batch_code = ?", batchCode).
		Order("checked_at asc, id asc").
		Find(&checkpoints).Error; err != nil {
		return nil, err
	}
	return checkpoints, nil
}
