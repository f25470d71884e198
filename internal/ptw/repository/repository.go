package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	Permit       *PermitRepository
	Extension    *ExtensionRepository
	Notification *NotificationRepository
	User         *UserRepository
	ActivityLog  *ActivityLogRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Permit:       NewPermitRepository(db),
		Extension:    NewExtensionRepository(db),
		Notification: NewNotificationRepository(db),
		User:         NewUserRepository(db),
		ActivityLog:  NewActivityLogRepository(db),
	}
}
