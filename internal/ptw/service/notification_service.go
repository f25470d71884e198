package service

import (
	"context"
	"log"
	"time"

	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/entity"
	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/repository"
	"github.com/anamika-webdev/AEPTW-sub004/internal/shared/feishu"
	"github.com/google/uuid"
)

// NotificationService 通知服务。站内通知为准，飞书卡片为尽力而为的旁路：
// 卡片发送失败只记日志，不影响已提交的许可单状态。
type NotificationService struct {
	repo         *repository.NotificationRepository
	userRepo     *repository.UserRepository
	feishuClient *feishu.FeishuClient
}

// NewNotificationService 创建通知服务
func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, fc *feishu.FeishuClient) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo, feishuClient: fc}
}

// Create 写入一条站内通知，并异步推送飞书卡片
func (s *NotificationService) Create(ctx context.Context, userID string, permit *entity.Permit, ntype, message string) (*entity.Notification, error) {
	n := &entity.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		PermitID:  permit.ID,
		Type:      ntype,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	// 异步飞书推送，失败不回传
	if s.feishuClient != nil {
		go s.pushFeishuCard(context.Background(), n, permit.Serial, permit.Title)
	}

	return n, nil
}

// CreateQuiet 写入站内通知，错误只记日志（审批事务提交后的通知不应使请求失败）
func (s *NotificationService) CreateQuiet(ctx context.Context, userID string, permit *entity.Permit, ntype, message string) {
	if _, err := s.Create(ctx, userID, permit, ntype, message); err != nil {
		log.Printf("[Notify] 写入通知失败 (user=%s permit=%s type=%s): %v", userID, permit.ID, ntype, err)
	}
}

// Exists 判断某许可单是否已存在指定类型的通知
func (s *NotificationService) Exists(ctx context.Context, permitID, ntype string) (bool, error) {
	return s.repo.ExistsForPermit(ctx, permitID, ntype)
}

// ListByUser 查询某用户的通知列表
func (s *NotificationService) ListByUser(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) ([]entity.Notification, int64, error) {
	return s.repo.FindByUser(ctx, userID, page, pageSize, unreadOnly)
}

// CountUnread 统计未读通知数
func (s *NotificationService) CountUnread(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead 标记单条通知已读
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	return s.repo.MarkRead(ctx, id, userID)
}

// MarkAllRead 标记全部通知已读
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllRead(ctx, userID)
}

// UserName 查询用户名字，查不到时回退为ID（通知文案用）
func (s *NotificationService) UserName(ctx context.Context, userID string) string {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return userID
	}
	return user.Name
}

// pushFeishuCard 根据通知类型选择卡片模板并推送
func (s *NotificationService) pushFeishuCard(ctx context.Context, n *entity.Notification, serial, title string) {
	user, err := s.userRepo.FindByID(ctx, n.UserID)
	if err != nil {
		log.Printf("[Notify] 查找通知接收人失败 (user_id=%s): %v", n.UserID, err)
		return
	}
	if user.FeishuOpenID == "" {
		log.Printf("[Notify] 用户[%s]没有飞书 open_id，跳过卡片推送", user.Name)
		return
	}

	var card feishu.InteractiveCard
	switch n.Type {
	case entity.NotificationTypeApprovalRequest, entity.NotificationTypeExtensionRequest:
		card = feishu.NewApprovalRequestCard(serial, title, n.Message)
	case entity.NotificationTypeApproved, entity.NotificationTypeExtensionApproved:
		card = feishu.NewApprovalResultCard(serial, "通过", n.Message)
	case entity.NotificationTypeRejected, entity.NotificationTypeExtensionRejected:
		card = feishu.NewApprovalResultCard(serial, "驳回", n.Message)
	case entity.NotificationTypeReminderStart, entity.NotificationTypeReminderEnd:
		card = feishu.NewReminderCard(serial, title, n.Message)
	default:
		return
	}

	if err := s.feishuClient.SendUserCard(ctx, user.FeishuOpenID, card); err != nil {
		log.Printf("[Notify] 发送飞书卡片给[%s]失败: %v", user.Name, err)
	}
}
