package repository

import (
	"context"
	"errors"

	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExtensionRepository 延期申请仓库
type ExtensionRepository struct {
	db *gorm.DB
}

func NewExtensionRepository(db *gorm.DB) *ExtensionRepository {
	return &ExtensionRepository{db: db}
}

// Create 创建延期申请
func (r *ExtensionRepository) Create(ctx context.Context, req *entity.ExtensionRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// FindByID 根据ID查找延期申请
func (r *ExtensionRepository) FindByID(ctx context.Context, id string) (*entity.ExtensionRequest, error) {
	var req entity.ExtensionRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// FindByIDForUpdate 在事务内加行级锁读取延期申请
func (r *ExtensionRepository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*entity.ExtensionRequest, error) {
	var req entity.ExtensionRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// FindByPermit 查询某许可单的全部延期申请
func (r *ExtensionRepository) FindByPermit(ctx context.Context, permitID string) ([]entity.ExtensionRequest, error) {
	var items []entity.ExtensionRequest
	err := r.db.WithContext(ctx).
		Where("permit_id = ?", permitID).
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}

// FindPendingForApprover 查询某用户待处理的延期审批
func (r *ExtensionRepository) FindPendingForApprover(ctx context.Context, userID string) ([]entity.ExtensionRequest, error) {
	var items []entity.ExtensionRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", entity.ExtensionStatusRequested).
		Where(
			r.db.Where("site_leader_id = ? AND site_leader_status = ?", userID, entity.ApprovalStatusPending).
				Or("safety_officer_id = ? AND safety_officer_status = ?", userID, entity.ApprovalStatusPending),
		).
		Preload("Permit").
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}

// Update 更新延期申请
func (r *ExtensionRepository) Update(ctx context.Context, req *entity.ExtensionRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}
