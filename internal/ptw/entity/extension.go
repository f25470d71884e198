package entity

import "time"

// 延期申请状态
const (
	ExtensionStatusRequested = "extension_requested"
	ExtensionStatusApproved  = "approved"
	ExtensionStatusRejected  = "rejected"
)

// ExtensionRoles 延期会签仅涉及站点负责人与安全员（区域负责人不参与）
var ExtensionRoles = []string{RoleSiteLeader, RoleSafetyOfficer}

// IsExtensionRole 判断是否为延期审批角色
func IsExtensionRole(role string) bool {
	return role == RoleSiteLeader || role == RoleSafetyOfficer
}

// ExtensionRequest 作业许可延期申请单
type ExtensionRequest struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	PermitID        string    `json:"permit_id" gorm:"size:36;not null;index"`
	OriginalEndTime time.Time `json:"original_end_time" gorm:"not null"`
	NewEndTime      time.Time `json:"new_end_time" gorm:"not null"`
	Reason          string    `json:"reason" gorm:"type:text;not null"`
	Status          string    `json:"status" gorm:"size:30;not null;default:'extension_requested'"`

	// 延期审批人从父许可单快照而来
	SiteLeaderID    *string `json:"site_leader_id" gorm:"size:36"`
	SafetyOfficerID *string `json:"safety_officer_id" gorm:"size:36"`

	SiteLeaderStatus    string `json:"site_leader_status" gorm:"size:20;not null;default:'pending'"`
	SafetyOfficerStatus string `json:"safety_officer_status" gorm:"size:20;not null;default:'pending'"`

	ResultComment string `json:"result_comment" gorm:"type:text"`

	RequestedBy string     `json:"requested_by" gorm:"size:36;not null"`
	DecidedAt   *time.Time `json:"decided_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// 关联
	Permit *Permit `json:"permit,omitempty" gorm:"foreignKey:PermitID"`
}

func (ExtensionRequest) TableName() string {
	return "ptw_extension_requests"
}

// IsOpen 是否仍在会签中
func (e *ExtensionRequest) IsOpen() bool {
	return e.Status == ExtensionStatusRequested
}

// AssignedApprover 返回指定角色的审批人ID，未指派时为nil
func (e *ExtensionRequest) AssignedApprover(role string) *string {
	switch role {
	case RoleSiteLeader:
		return e.SiteLeaderID
	case RoleSafetyOfficer:
		return e.SafetyOfficerID
	}
	return nil
}

// RoleStatus 返回指定角色的审批状态
func (e *ExtensionRequest) RoleStatus(role string) string {
	switch role {
	case RoleSiteLeader:
		return e.SiteLeaderStatus
	case RoleSafetyOfficer:
		return e.SafetyOfficerStatus
	}
	return ""
}

// SetRoleStatus 写入指定角色的审批状态
func (e *ExtensionRequest) SetRoleStatus(role, status string) {
	switch role {
	case RoleSiteLeader:
		e.SiteLeaderStatus = status
	case RoleSafetyOfficer:
		e.SafetyOfficerStatus = status
	}
}

// ApprovalVotes 生成会签评估输入（两个角色各一票）
func (e *ExtensionRequest) ApprovalVotes() []RoleVote {
	votes := make([]RoleVote, 0, len(ExtensionRoles))
	for _, role := range ExtensionRoles {
		votes = append(votes, RoleVote{
			Role:     role,
			Assigned: e.AssignedApprover(role) != nil,
			Status:   e.RoleStatus(role),
		})
	}
	return votes
}
