package entity

import "time"

// User 系统用户（主管/审批人）。账号与权限体系由外部身份服务维护，
// 这里仅保存审批与通知所需的基础信息。
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Username     string    `json:"username" gorm:"size:100;uniqueIndex;not null"`
	Name         string    `json:"name" gorm:"size:100;not null"`
	Email        string    `json:"email" gorm:"size:200"`
	FeishuOpenID string    `json:"feishu_open_id" gorm:"size:64"`
	Status       string    `json:"status" gorm:"size:20;not null;default:'active'"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "ptw_users"
}
