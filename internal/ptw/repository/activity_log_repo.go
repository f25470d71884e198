package repository

import (
	"context"

	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/entity"
	"gorm.io/gorm"
)

// ActivityLogRepository 许可单操作日志仓库
type ActivityLogRepository struct {
	db *gorm.DB
}

func NewActivityLogRepository(db *gorm.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Create 追加一条操作日志
func (r *ActivityLogRepository) Create(ctx context.Context, log *entity.PermitActivityLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByPermit 查询某许可单的操作日志（时间正序）
func (r *ActivityLogRepository) FindByPermit(ctx context.Context, permitID string) ([]entity.PermitActivityLog, error) {
	var items []entity.PermitActivityLog
	err := r.db.WithContext(ctx).
		Where("permit_id = ?", permitID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}
