package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/entity"
	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExtensionService 延期服务：active许可单的二次会签（站点负责人+安全员）
type ExtensionService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	notifier *NotificationService
}

// NewExtensionService 创建延期服务
func NewExtensionService(db *gorm.DB, repos *repository.Repositories, notifier *NotificationService) *ExtensionService {
	return &ExtensionService{db: db, repos: repos, notifier: notifier}
}

// Request 发起延期申请。
// 仅申请人可发起；同一许可单同时只允许一条在途延期申请，
// 再次发起返回 ErrInvalidState。延期角色均未指派时会签即刻通过。
func (s *ExtensionService) Request(ctx context.Context, permitID string, newEndTime time.Time, reason, actorID string) (*entity.ExtensionRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: 延期申请需说明原因", ErrValidation)
	}

	var (
		ext          *entity.ExtensionRequest
		parent       *entity.Permit
		autoApproved bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		permit, err := s.repos.Permit.FindByIDForUpdate(ctx, tx, permitID)
		if err != nil {
			if err == repository.ErrNotFound {
				return ErrPermitNotFound
			}
			return err
		}

		if permit.Status != entity.PermitStatusActive {
			return fmt.Errorf("%w: 仅生效中的许可单可申请延期（当前状态 %s）", ErrInvalidState, permit.Status)
		}
		if permit.CreatedBy != actorID {
			return fmt.Errorf("%w: 只有申请人可以发起延期", ErrForbidden)
		}
		if !newEndTime.After(permit.EndTime) {
			return fmt.Errorf("%w: 新截止时间必须晚于当前截止时间", ErrValidation)
		}

		// 同一许可单只允许一条在途延期（行锁内检查，防并发重复发起）
		var openCount int64
		if err := tx.Model(&entity.ExtensionRequest{}).
			Where("permit_id = ? AND status = ?", permit.ID, entity.ExtensionStatusRequested).
			Count(&openCount).Error; err != nil {
			return err
		}
		if openCount > 0 {
			return fmt.Errorf("%w: 已有延期申请在审批中", ErrInvalidState)
		}

		now := time.Now()
		ext = &entity.ExtensionRequest{
			ID:                  uuid.New().String(),
			PermitID:            permit.ID,
			OriginalEndTime:     permit.EndTime,
			NewEndTime:          newEndTime,
			Reason:              reason,
			Status:              entity.ExtensionStatusRequested,
			SiteLeaderID:        permit.SiteLeaderID,
			SafetyOfficerID:     permit.SafetyOfficerID,
			SiteLeaderStatus:    entity.ApprovalStatusPending,
			SafetyOfficerStatus: entity.ApprovalStatusPending,
			RequestedBy:         actorID,
			CreatedAt:           now,
			UpdatedAt:           now,
		}

		fromStatus := permit.Status
		// 两个延期角色都未指派 → 会签即刻通过
		autoApproved = entity.EvaluateConsensus(ext.ApprovalVotes()) == entity.ApprovalStatusApproved
		if autoApproved {
			ext.Status = entity.ExtensionStatusApproved
			ext.DecidedAt = &now
			permit.EndTime = newEndTime
		} else {
			permit.Status = entity.PermitStatusExtensionRequested
			if !entity.CanTransition(fromStatus, permit.Status) {
				return fmt.Errorf("%w: 非法状态迁移 %s → %s", ErrInvalidState, fromStatus, permit.Status)
			}
		}
		permit.UpdatedAt = now

		if err := tx.Create(ext).Error; err != nil {
			return fmt.Errorf("创建延期申请失败: %w", err)
		}
		if err := tx.Save(permit).Error; err != nil {
			return fmt.Errorf("更新许可单失败: %w", err)
		}

		logRow := &entity.PermitActivityLog{
			ID:         uuid.New().String(),
			PermitID:   permit.ID,
			Action:     "request_extension",
			FromStatus: fromStatus,
			ToStatus:   permit.Status,
			OperatorID: actorID,
			Comment:    reason,
			CreatedAt:  now,
		}
		if err := tx.Create(logRow).Error; err != nil {
			return fmt.Errorf("写入操作日志失败: %w", err)
		}

		parent = permit
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 事务提交后通知
	if autoApproved {
		s.notifier.CreateQuiet(ctx, parent.CreatedBy, parent, entity.NotificationTypeExtensionApproved,
			fmt.Sprintf("许可单 %s 未配置延期审批人，截止时间已顺延至 %s",
				parent.Serial, ext.NewEndTime.Format("2006-01-02 15:04")))
	} else {
		requesterName := s.notifier.UserName(ctx, actorID)
		for _, role := range entity.ExtensionRoles {
			if approverID := ext.AssignedApprover(role); approverID != nil {
				s.notifier.CreateQuiet(ctx, *approverID, parent, entity.NotificationTypeExtensionRequest,
					fmt.Sprintf("%s 为许可单 %s 申请延期至 %s（原因：%s），请您以%s身份审批",
						requesterName, parent.Serial, ext.NewEndTime.Format("2006-01-02 15:04"),
						reason, entity.RoleDisplayName(role)))
			}
		}
	}

	return ext, nil
}

// RecordDecision 记录一次延期审批动作并重算会签。
// 聚合通过时在同一事务内：延期单置approved、父许可单end_time顺延、状态回到active。
// 聚合驳回时父许可单回到active，end_time保持不变。
func (s *ExtensionService) RecordDecision(ctx context.Context, extensionID, role, decision, actorID, comment string) (*entity.ExtensionRequest, error) {
	if !entity.IsExtensionRole(role) {
		return nil, fmt.Errorf("%w: 延期审批仅限站点负责人与安全员", ErrValidation)
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, fmt.Errorf("%w: 审批动作必须为 approve 或 reject", ErrValidation)
	}
	if strings.TrimSpace(comment) == "" {
		if decision == DecisionApprove {
			return nil, fmt.Errorf("%w: 审批通过需附签名", ErrValidation)
		}
		return nil, fmt.Errorf("%w: 审批驳回需说明原因", ErrValidation)
	}

	var (
		result    *entity.ExtensionRequest
		parent    *entity.Permit
		aggregate string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先无锁读出父许可单ID，再按"先许可单、后延期单"的固定顺序加锁。
		// Close 按同一顺序持锁（先锁许可单，再改在途延期行），顺序一致才不会互相死锁。
		peek, err := s.repos.Extension.FindByID(ctx, extensionID)
		if err != nil {
			if err == repository.ErrNotFound {
				return ErrExtensionNotFound
			}
			return err
		}

		permit, err := s.repos.Permit.FindByIDForUpdate(ctx, tx, peek.PermitID)
		if err != nil {
			if err == repository.ErrNotFound {
				return ErrPermitNotFound
			}
			return err
		}

		ext, err := s.repos.Extension.FindByIDForUpdate(ctx, tx, extensionID)
		if err != nil {
			if err == repository.ErrNotFound {
				return ErrExtensionNotFound
			}
			return err
		}

		// 状态在锁内复核：拿锁前可能已被关闭流程作废或他人定案
		if !ext.IsOpen() {
			return fmt.Errorf("%w: 延期申请已处理（当前状态 %s）", ErrInvalidState, ext.Status)
		}

		approverID := ext.AssignedApprover(role)
		if approverID == nil || *approverID != actorID {
			return fmt.Errorf("%w: 您未被指派为该延期申请的%s", ErrForbidden, entity.RoleDisplayName(role))
		}
		if ext.RoleStatus(role) != entity.ApprovalStatusPending {
			return fmt.Errorf("%w: 该角色已完成审批", ErrForbidden)
		}

		if decision == DecisionApprove {
			ext.SetRoleStatus(role, entity.ApprovalStatusApproved)
		} else {
			ext.SetRoleStatus(role, entity.ApprovalStatusRejected)
		}
		aggregate = entity.EvaluateConsensus(ext.ApprovalVotes())

		now := time.Now()
		fromStatus := permit.Status
		switch aggregate {
		case entity.ApprovalStatusApproved:
			ext.Status = entity.ExtensionStatusApproved
			ext.DecidedAt = &now
			permit.EndTime = ext.NewEndTime
			permit.Status = entity.PermitStatusActive
		case entity.ApprovalStatusRejected:
			ext.Status = entity.ExtensionStatusRejected
			ext.ResultComment = comment
			ext.DecidedAt = &now
			permit.Status = entity.PermitStatusActive
		}
		if permit.Status != fromStatus && !entity.CanTransition(fromStatus, permit.Status) {
			return fmt.Errorf("%w: 非法状态迁移 %s → %s", ErrInvalidState, fromStatus, permit.Status)
		}
		ext.UpdatedAt = now
		permit.UpdatedAt = now

		if err := tx.Save(ext).Error; err != nil {
			return fmt.Errorf("更新延期申请失败: %w", err)
		}
		if err := tx.Save(permit).Error; err != nil {
			return fmt.Errorf("更新许可单失败: %w", err)
		}

		if aggregate != entity.ApprovalStatusPending {
			action := "extension_approve"
			if aggregate == entity.ApprovalStatusRejected {
				action = "extension_reject"
			}
			logRow := &entity.PermitActivityLog{
				ID:         uuid.New().String(),
				PermitID:   permit.ID,
				Action:     action,
				Role:       role,
				FromStatus: fromStatus,
				ToStatus:   permit.Status,
				OperatorID: actorID,
				Comment:    comment,
				CreatedAt:  now,
			}
			if err := tx.Create(logRow).Error; err != nil {
				return fmt.Errorf("写入操作日志失败: %w", err)
			}
		}

		result = ext
		parent = permit
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 聚合结果落定后通知发起人
	if aggregate == entity.ApprovalStatusApproved {
		s.notifier.CreateQuiet(ctx, result.RequestedBy, parent, entity.NotificationTypeExtensionApproved,
			fmt.Sprintf("许可单 %s 延期申请已通过，截止时间顺延至 %s",
				parent.Serial, result.NewEndTime.Format("2006-01-02 15:04")))
	} else if aggregate == entity.ApprovalStatusRejected {
		actorName := s.notifier.UserName(ctx, actorID)
		s.notifier.CreateQuiet(ctx, result.RequestedBy, parent, entity.NotificationTypeExtensionRejected,
			fmt.Sprintf("许可单 %s 延期申请被 %s[%s] 驳回：%s",
				parent.Serial, actorName, entity.RoleDisplayName(role), comment))
	}

	return result, nil
}

// Get 获取延期申请详情
func (s *ExtensionService) Get(ctx context.Context, extensionID string) (*entity.ExtensionRequest, error) {
	ext, err := s.repos.Extension.FindByID(ctx, extensionID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, ErrExtensionNotFound
		}
		return nil, err
	}
	return ext, nil
}

// ListByPermit 查询某许可单的延期申请
func (s *ExtensionService) ListByPermit(ctx context.Context, permitID string) ([]entity.ExtensionRequest, error) {
	return s.repos.Extension.FindByPermit(ctx, permitID)
}

// ListMyPendingApprovals 查询我的待审批延期申请
func (s *ExtensionService) ListMyPendingApprovals(ctx context.Context, userID string) ([]entity.ExtensionRequest, error) {
	return s.repos.Extension.FindPendingForApprover(ctx, userID)
}
