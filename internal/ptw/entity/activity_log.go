package entity

import "time"

// PermitActivityLog 许可单操作日志（追加写，不更新）
type PermitActivityLog struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	PermitID   string    `json:"permit_id" gorm:"size:36;not null;index"`
	Action     string    `json:"action" gorm:"size:50;not null"` // submit/approve/reject/request_extension/extension_approve/extension_reject/close
	Role       string    `json:"role" gorm:"size:30"`
	FromStatus string    `json:"from_status" gorm:"size:30"`
	ToStatus   string    `json:"to_status" gorm:"size:30"`
	OperatorID string    `json:"operator_id" gorm:"size:36;not null"`
	Comment    string    `json:"comment" gorm:"type:text"` // 审批签名或驳回原因
	CreatedAt  time.Time `json:"created_at"`
}

func (PermitActivityLog) TableName() string {
	return "ptw_permit_activity_logs"
}
