package service

import (
	"errors"

	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/repository"
	"github.com/anamika-webdev/AEPTW-sub004/internal/shared/feishu"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 业务错误定义。handler层通过 errors.Is 映射为不同HTTP响应，
// 前端需要区分"参数有误/无权操作/状态不允许/单据不存在"四类提示。
var (
	ErrPermitNotFound    = errors.New("许可单不存在")
	ErrExtensionNotFound = errors.New("延期申请不存在")
	ErrForbidden         = errors.New("无权执行此操作")
	ErrInvalidState      = errors.New("当前状态不允许此操作")
	ErrValidation        = errors.New("参数校验失败")
)

// isUniqueViolation 判断是否为Postgres唯一约束冲突（SQLSTATE 23505）
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Services 服务集合
type Services struct {
	Permit       *PermitService
	Extension    *ExtensionService
	Notification *NotificationService
	Reminder     *ReminderService
}

// NewServices 创建服务集合
// feishuClient / redisClient 均可为nil（未配置时降级为纯站内通知、单实例调度）
func NewServices(db *gorm.DB, repos *repository.Repositories, fc *feishu.FeishuClient, rdb *redis.Client) *Services {
	notificationSvc := NewNotificationService(repos.Notification, repos.User, fc)
	return &Services{
		Permit:       NewPermitService(db, repos, notificationSvc),
		Extension:    NewExtensionService(db, repos, notificationSvc),
		Notification: notificationSvc,
		Reminder:     NewReminderService(repos, notificationSvc, rdb),
	}
}
