package entity

import "time"

// 通知类型（封闭枚举）
const (
	NotificationTypeApprovalRequest   = "APPROVAL_REQUEST"
	NotificationTypeApproved          = "APPROVED"
	NotificationTypeRejected          = "REJECTED"
	NotificationTypeExtensionRequest  = "EXTENSION_REQUEST"
	NotificationTypeExtensionApproved = "EXTENSION_APPROVED"
	NotificationTypeExtensionRejected = "EXTENSION_REJECTED"
	NotificationTypeReminderStart     = "REMINDER_START"
	NotificationTypeReminderEnd       = "REMINDER_END"
)

// Notification 站内通知。创建后不可变，只允许更新已读状态。
// 提醒类通知（REMINDER_START/REMINDER_END）每个许可单至多一条，
// 由 (permit_id, type) 上的部分唯一索引兜底（见 cmd/ptw 迁移SQL）。
type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserID    string    `json:"user_id" gorm:"size:36;not null;index"`
	PermitID  string    `json:"permit_id" gorm:"size:36;not null;index"`
	Type      string    `json:"type" gorm:"size:50;not null"`
	Message   string    `json:"message" gorm:"type:text;not null"`
	IsRead    bool      `json:"is_read" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string {
	return "ptw_notifications"
}
