package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/entity"
	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 审批动作常量
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// PermitService 许可单服务：负责许可单生命周期与三方会签
type PermitService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	notifier *NotificationService
}

// NewPermitService 创建许可单服务
func NewPermitService(db *gorm.DB, repos *repository.Repositories, notifier *NotificationService) *PermitService {
	return &PermitService{db: db, repos: repos, notifier: notifier}
}

// SubmitPermitReq 提交许可单参数
type SubmitPermitReq struct {
	Title           string    `json:"title" binding:"required"`
	Description     string    `json:"description"`
	WorkType        string    `json:"work_type"`
	Location        string    `json:"location"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	EndTime         time.Time `json:"end_time" binding:"required"`
	AreaManagerID   *string   `json:"area_manager_id"`
	SafetyOfficerID *string   `json:"safety_officer_id"`
	SiteLeaderID    *string   `json:"site_leader_id"`
}

// Submit 提交许可单：创建草稿并立即转入会签。
// 未指派任何审批角色时会签直接通过，许可单进入active。
func (s *PermitService) Submit(ctx context.Context, req SubmitPermitReq, createdBy string) (*entity.Permit, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: 作业名称不能为空", ErrValidation)
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, fmt.Errorf("%w: 截止时间必须晚于开工时间", ErrValidation)
	}

	var (
		permit       *entity.Permit
		autoApproved bool
	)
	// 编号用MAX扫描生成，并发提交可能撞号，唯一约束冲突后重新取号再试
	for attempt := 0; ; attempt++ {
		serial, err := s.repos.Permit.GenerateSerial(ctx)
		if err != nil {
			return nil, fmt.Errorf("生成许可单编号失败: %w", err)
		}

		now := time.Now()
		permit = &entity.Permit{
			ID:                  uuid.New().String(),
			Serial:              serial,
			Title:               req.Title,
			Description:         req.Description,
			WorkType:            req.WorkType,
			Location:            req.Location,
			StartTime:           req.StartTime,
			EndTime:             req.EndTime,
			Status:              entity.PermitStatusDraft,
			AreaManagerID:       req.AreaManagerID,
			SafetyOfficerID:     req.SafetyOfficerID,
			SiteLeaderID:        req.SiteLeaderID,
			AreaManagerStatus:   entity.ApprovalStatusPending,
			SafetyOfficerStatus: entity.ApprovalStatusPending,
			SiteLeaderStatus:    entity.ApprovalStatusPending,
			CreatedBy:           createdBy,
			CreatedAt:           now,
			UpdatedAt:           now,
		}

		// draft → pending_approval；无审批人时会签即刻通过，直接进入active
		permit.Status = entity.PermitStatusPendingApproval
		autoApproved = entity.EvaluateConsensus(permit.ApprovalVotes()) == entity.ApprovalStatusApproved
		if autoApproved {
			permit.Status = entity.PermitStatusActive
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(permit).Error; err != nil {
				return fmt.Errorf("创建许可单失败: %w", err)
			}
			logRow := &entity.PermitActivityLog{
				ID:         uuid.New().String(),
				PermitID:   permit.ID,
				Action:     "submit",
				FromStatus: entity.PermitStatusDraft,
				ToStatus:   permit.Status,
				OperatorID: createdBy,
				CreatedAt:  now,
			}
			return tx.Create(logRow).Error
		})
		if err != nil {
			if isUniqueViolation(err) && attempt < 8 {
				continue
			}
			return nil, err
		}
		break
	}

	// 事务提交后发通知
	if autoApproved {
		s.notifier.CreateQuiet(ctx, createdBy, permit, entity.NotificationTypeApproved,
			fmt.Sprintf("许可单 %s 未配置审批人，已自动通过并生效", permit.Serial))
	} else {
		requesterName := s.notifier.UserName(ctx, createdBy)
		for _, role := range entity.PermitRoles {
			if approverID := permit.AssignedApprover(role); approverID != nil {
				s.notifier.CreateQuiet(ctx, *approverID, permit, entity.NotificationTypeApprovalRequest,
					fmt.Sprintf("%s 提交了许可单 %s（%s），请您以%s身份审批",
						requesterName, permit.Serial, permit.Title, entity.RoleDisplayName(role)))
			}
		}
	}

	return permit, nil
}

// decisionOutcome 单次审批动作在事务内计算出的结果，事务提交后据此发通知
type decisionOutcome struct {
	permit    *entity.Permit
	aggregate string // 本次动作后的会签聚合结果
	changed   bool   // 聚合结果是否离开pending
}

// RecordDecision 记录一次审批动作并重算会签。
// 同一许可单的读-判-写在行级锁内串行化：两个审批人同时点"通过"
// 只会有一方触发最终状态迁移，结果通知也只发一次。
func (s *PermitService) RecordDecision(ctx context.Context, permitID, role, decision, actorID, comment string) (*entity.Permit, error) {
	if !entity.IsPermitRole(role) {
		return nil, fmt.Errorf("%w: 未知审批角色 %s", ErrValidation, role)
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

	var outcome decisionOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		permit, err := s.repos.Permit.FindByIDForUpdate(ctx, tx, permitID)
		if err != nil {
			if err == repository.ErrNotFound {
				return ErrPermitNotFound
			}
			return err
		}

		if permit.Status != entity.PermitStatusPendingApproval {
			return fmt.Errorf("%w: 许可单当前状态为 %s", ErrInvalidState, permit.Status)
		}

		approverID := permit.AssignedApprover(role)
		if approverID == nil || *approverID != actorID {
			return fmt.Errorf("%w: 您未被指派为该许可单的%s", ErrForbidden, entity.RoleDisplayName(role))
		}
		if permit.RoleStatus(role) != entity.ApprovalStatusPending {
			return fmt.Errorf("%w: 该角色已完成审批", ErrForbidden)
		}

		// 写入本角色结论并重算聚合
		if decision == DecisionApprove {
			permit.SetRoleStatus(role, entity.ApprovalStatusApproved)
		} else {
			permit.SetRoleStatus(role, entity.ApprovalStatusRejected)
		}
		aggregate := entity.EvaluateConsensus(permit.ApprovalVotes())

		now := time.Now()
		fromStatus := permit.Status
		switch aggregate {
		case entity.ApprovalStatusRejected:
			// 一票否决，进入终态
			permit.Status = entity.PermitStatusRejected
			permit.ResultComment = comment
		case entity.ApprovalStatusApproved:
			// approved 与 active 之间没有人工闸门，直接生效
			permit.Status = entity.PermitStatusActive
		}
		if permit.Status != fromStatus && !entity.CanTransition(fromStatus, permit.Status) {
			return fmt.Errorf("%w: 非法状态迁移 %s → %s", ErrInvalidState, fromStatus, permit.Status)
		}
		permit.UpdatedAt = now

		if err := tx.Save(permit).Error; err != nil {
			return fmt.Errorf("更新许可单失败: %w", err)
		}

		logRow := &entity.PermitActivityLog{
			ID:         uuid.New().String(),
			PermitID:   permit.ID,
			Action:     decision,
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

		outcome = decisionOutcome{
			permit:    permit,
			aggregate: aggregate,
			changed:   aggregate != entity.ApprovalStatusPending,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 聚合结果落定后，事务外通知发起人（只通知发起人，不广播其他审批人）
	if outcome.changed {
		permit := outcome.permit
		actorName := s.notifier.UserName(ctx, actorID)
		roleName := entity.RoleDisplayName(role)
		if outcome.aggregate == entity.ApprovalStatusApproved {
			s.notifier.CreateQuiet(ctx, permit.CreatedBy, permit, entity.NotificationTypeApproved,
				fmt.Sprintf("许可单 %s 会签通过（最后审批：%s[%s]），作业可以开始", permit.Serial, actorName, roleName))
		} else {
			s.notifier.CreateQuiet(ctx, permit.CreatedBy, permit, entity.NotificationTypeRejected,
				fmt.Sprintf("许可单 %s 被 %s[%s] 驳回：%s", permit.Serial, actorName, roleName, comment))
		}
	}

	return outcome.permit, nil
}

// Close 关闭许可单（作业完成）。仅创建人可关闭，active/extension_requested 可关。
func (s *PermitService) Close(ctx context.Context, permitID, actorID string) (*entity.Permit, error) {
	var closed *entity.Permit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		permit, err := s.repos.Permit.FindByIDForUpdate(ctx, tx, permitID)
		if err != nil {
			if err == repository.ErrNotFound {
				return ErrPermitNotFound
			}
			return err
		}
		if permit.CreatedBy != actorID {
			return fmt.Errorf("%w: 只有申请人可以关闭许可单", ErrForbidden)
		}
		if !entity.CanTransition(permit.Status, entity.PermitStatusClosed) {
			return fmt.Errorf("%w: 许可单当前状态为 %s", ErrInvalidState, permit.Status)
		}

		now := time.Now()
		fromStatus := permit.Status
		permit.Status = entity.PermitStatusClosed
		permit.ClosedAt = &now
		permit.UpdatedAt = now
		if err := tx.Save(permit).Error; err != nil {
			return fmt.Errorf("关闭许可单失败: %w", err)
		}

		// 关闭时挂起的延期申请一并作废
		if err := tx.Model(&entity.ExtensionRequest{}).
			Where("permit_id = ? AND status = ?", permit.ID, entity.ExtensionStatusRequested).
			Updates(map[string]interface{}{
				"status":         entity.ExtensionStatusRejected,
				"result_comment": "许可单已关闭，延期申请自动作废",
				"updated_at":     now,
			}).Error; err != nil {
			return fmt.Errorf("作废挂起延期申请失败: %w", err)
		}

		logRow := &entity.PermitActivityLog{
			ID:         uuid.New().String(),
			PermitID:   permit.ID,
			Action:     "close",
			FromStatus: fromStatus,
			ToStatus:   permit.Status,
			OperatorID: actorID,
			CreatedAt:  now,
		}
		if err := tx.Create(logRow).Error; err != nil {
			return fmt.Errorf("写入操作日志失败: %w", err)
		}

		closed = permit
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Permit] 许可单已关闭 (serial=%s operator=%s)", closed.Serial, actorID)
	return closed, nil
}

// Get 获取许可单详情（含延期记录与操作日志）
func (s *PermitService) Get(ctx context.Context, permitID string) (*entity.Permit, []entity.PermitActivityLog, error) {
	permit, err := s.repos.Permit.FindByID(ctx, permitID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, nil, ErrPermitNotFound
		}
		return nil, nil, err
	}

	extensions, err := s.repos.Extension.FindByPermit(ctx, permitID)
	if err != nil {
		return nil, nil, err
	}
	permit.Extensions = extensions

	logs, err := s.repos.ActivityLog.FindByPermit(ctx, permitID)
	if err != nil {
		return nil, nil, err
	}
	return permit, logs, nil
}

// List 查询许可单列表
func (s *PermitService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Permit, int64, error) {
	return s.repos.Permit.FindAll(ctx, page, pageSize, filters)
}

// ListMyPendingApprovals 查询我的待审批许可单
func (s *PermitService) ListMyPendingApprovals(ctx context.Context, userID string) ([]entity.Permit, error) {
	return s.repos.Permit.FindPendingForApprover(ctx, userID)
}
