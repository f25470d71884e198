package entity

import "time"

// 许可单生命周期状态
const (
	PermitStatusDraft              = "draft"
	PermitStatusPendingApproval    = "pending_approval"
	PermitStatusApproved           = "approved"
	PermitStatusActive             = "active"
	PermitStatusExtensionRequested = "extension_requested"
	PermitStatusRejected           = "rejected"
	PermitStatusClosed             = "closed"
)

// 审批角色常量
const (
	RoleAreaManager   = "area_manager"
	RoleSafetyOfficer = "safety_officer"
	RoleSiteLeader    = "site_leader"
)

// PermitRoles 许可单审批涉及的全部角色（顺序固定）
var PermitRoles = []string{RoleAreaManager, RoleSafetyOfficer, RoleSiteLeader}

// RoleDisplayName 角色中文名（通知文案用）
func RoleDisplayName(role string) string {
	switch role {
	case RoleAreaManager:
		return "区域负责人"
	case RoleSafetyOfficer:
		return "安全员"
	case RoleSiteLeader:
		return "站点负责人"
	}
	return role
}

// IsPermitRole 判断是否为合法审批角色
func IsPermitRole(role string) bool {
	for _, r := range PermitRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Permit 作业许可单
type Permit struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Serial      string    `json:"serial" gorm:"size:32;uniqueIndex;not null"` // PTW-2026-0001
	Title       string    `json:"title" gorm:"size:200;not null"`
	Description string    `json:"description" gorm:"type:text"`
	WorkType    string    `json:"work_type" gorm:"size:50"` // hot_work/confined_space/working_at_height/general
	Location    string    `json:"location" gorm:"size:200"`
	StartTime   time.Time `json:"start_time" gorm:"not null"`
	EndTime     time.Time `json:"end_time" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:30;not null;default:'draft'"`

	// 三个审批角色，均可不指派；未指派的角色不参与会签
	AreaManagerID   *string `json:"area_manager_id" gorm:"size:36"`
	SafetyOfficerID *string `json:"safety_officer_id" gorm:"size:36"`
	SiteLeaderID    *string `json:"site_leader_id" gorm:"size:36"`

	// 各角色审批状态，仅在对应ID非空时有意义
	AreaManagerStatus   string `json:"area_manager_status" gorm:"size:20;not null;default:'pending'"`
	SafetyOfficerStatus string `json:"safety_officer_status" gorm:"size:20;not null;default:'pending'"`
	SiteLeaderStatus    string `json:"site_leader_status" gorm:"size:20;not null;default:'pending'"`

	// 终态说明（驳回原因等）
	ResultComment string `json:"result_comment" gorm:"type:text"`

	CreatedBy string     `json:"created_by" gorm:"size:36;not null;index"`
	ClosedAt  *time.Time `json:"closed_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// 关联
	Creator    *User              `json:"creator,omitempty" gorm:"foreignKey:CreatedBy"`
	Extensions []ExtensionRequest `json:"extensions,omitempty" gorm:"foreignKey:PermitID"`
}

func (Permit) TableName() string {
	return "ptw_permits"
}

// AssignedApprover 返回指定角色的审批人ID，未指派时为nil
func (p *Permit) AssignedApprover(role string) *string {
	switch role {
	case RoleAreaManager:
		return p.AreaManagerID
	case RoleSafetyOfficer:
		return p.SafetyOfficerID
	case RoleSiteLeader:
		return p.SiteLeaderID
	}
	return nil
}

// RoleStatus 返回指定角色的审批状态
func (p *Permit) RoleStatus(role string) string {
	switch role {
	case RoleAreaManager:
		return p.AreaManagerStatus
	case RoleSafetyOfficer:
		return p.SafetyOfficerStatus
	case RoleSiteLeader:
		return p.SiteLeaderStatus
	}
	return ""
}

// SetRoleStatus 写入指定角色的审批状态
func (p *Permit) SetRoleStatus(role, status string) {
	switch role {
	case RoleAreaManager:
		p.AreaManagerStatus = status
	case RoleSafetyOfficer:
		p.SafetyOfficerStatus = status
	case RoleSiteLeader:
		p.SiteLeaderStatus = status
	}
}

// ApprovalVotes 生成会签评估输入（三个角色各一票）
func (p *Permit) ApprovalVotes() []RoleVote {
	votes := make([]RoleVote, 0, len(PermitRoles))
	for _, role := range PermitRoles {
		votes = append(votes, RoleVote{
			Role:     role,
			Assigned: p.AssignedApprover(role) != nil,
			Status:   p.RoleStatus(role),
		})
	}
	return votes
}

// permitTransitions 状态迁移表：from → 允许的 to 集合
// 终态（rejected/closed）不出现在键中，任何迁移都不被接受
var permitTransitions = map[string][]string{
	PermitStatusDraft:              {PermitStatusPendingApproval},
	PermitStatusPendingApproval:    {PermitStatusApproved, PermitStatusActive, PermitStatusRejected},
	PermitStatusApproved:           {PermitStatusActive},
	PermitStatusActive:             {PermitStatusExtensionRequested, PermitStatusClosed},
	PermitStatusExtensionRequested: {PermitStatusActive, PermitStatusClosed},
}

// CanTransition 判断许可单状态迁移是否合法
func CanTransition(from, to string) bool {
	for _, t := range permitTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus 判断是否为终态（不再接受任何操作）
func IsTerminalStatus(status string) bool {
	return status == PermitStatusRejected || status == PermitStatusClosed
}
