package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PermitRepository 许可单仓库
type PermitRepository struct {
	db *gorm.DB
}

func NewPermitRepository(db *gorm.DB) *PermitRepository {
	return &PermitRepository{db: db}
}

// Create 创建许可单
func (r *PermitRepository) Create(ctx context.Context, permit *entity.Permit) error {
	return r.db.WithContext(ctx).Create(permit).Error
}

// FindByID 根据ID查找许可单
func (r *PermitRepository) FindByID(ctx context.Context, id string) (*entity.Permit, error) {
	var permit entity.Permit
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&permit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &permit, nil
}

// FindByIDForUpdate 在事务内加行级锁读取许可单。
// 审批/延期的读-判-写序列必须在持有该锁的事务内完成。
func (r *PermitRepository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*entity.Permit, error) {
	var permit entity.Permit
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&permit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &permit, nil
}

// FindAll 查询许可单列表
func (r *PermitRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Permit, int64, error) {
	var items []entity.Permit
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Permit{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if createdBy := filters["created_by"]; createdBy != "" {
		query = query.Where("created_by = ?", createdBy)
	}
	if workType := filters["work_type"]; workType != "" {
		query = query.Where("work_type = ?", workType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Creator").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindPendingForApprover 查询某用户待处理的许可审批
// （用户被指派到任一角色、对应角色仍为pending、许可单处于会签中）
func (r *PermitRepository) FindPendingForApprover(ctx context.Context, userID string) ([]entity.Permit, error) {
	var items []entity.Permit
	err := r.db.WithContext(ctx).
		Where("status = ?", entity.PermitStatusPendingApproval).
		Where(
			r.db.Where("area_manager_id = ? AND area_manager_status = ?", userID, entity.ApprovalStatusPending).
				Or("safety_officer_id = ? AND safety_officer_status = ?", userID, entity.ApprovalStatusPending).
				Or("site_leader_id = ? AND site_leader_status = ?", userID, entity.ApprovalStatusPending),
		).
		Preload("Creator").
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}

// FindStartingBetween 查询开工时间落在窗口内的许可单
func (r *PermitRepository) FindStartingBetween(ctx context.Context, statuses []string, from, to time.Time) ([]entity.Permit, error) {
	var items []entity.Permit
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Where("start_time >= ? AND start_time <= ?", from, to).
		Find(&items).Error
	return items, err
}

// FindExpiringBetween 查询截止时间落在窗口内的许可单
func (r *PermitRepository) FindExpiringBetween(ctx context.Context, statuses []string, from, to time.Time) ([]entity.Permit, error) {
	var items []entity.Permit
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Where("end_time >= ? AND end_time <= ?", from, to).
		Find(&items).Error
	return items, err
}

// Update 更新许可单
func (r *PermitRepository) Update(ctx context.Context, permit *entity.Permit) error {
	return r.db.WithContext(ctx).Save(permit).Error
}

// GenerateSerial 生成许可单编号 PTW-{year}-{4位}
func (r *PermitRepository) GenerateSerial(ctx context.Context) (string, error) {
	year := time.Now().Format("2006")
	prefix := fmt.Sprintf("PTW-%s-", year)

	var maxSerial string
	err := r.db.WithContext(ctx).
		Model(&entity.Permit{}).
		Select("COALESCE(MAX(serial), '')").
		Where("serial LIKE ?", prefix+"%").
		Scan(&maxSerial).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxSerial != "" {
		fmt.Sscanf(maxSerial, "PTW-"+year+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("PTW-%s-%04d", year, seq), nil
}
