package entity

// 单角色审批状态常量（许可单与延期申请共用）
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
)

// RoleVote 会签评估的单票输入
type RoleVote struct {
	Role     string // 角色标识，仅用于日志和通知文案
	Assigned bool   // 该角色是否已指派审批人
	Status   string // 该角色当前审批状态
}

// EvaluateConsensus 会签评估：对任意角色集合计算聚合结果。
// 规则：
//   - 任一已指派角色驳回 → rejected（一票否决）
//   - 所有已指派角色均通过 → approved（未指派角色视为自动满足）
//   - 其余情况 → pending
//
// 零个已指派角色时直接返回 approved。
// 许可单（三角色）与延期申请（两角色）走同一份逻辑。
func EvaluateConsensus(votes []RoleVote) string {
	allApproved := true
	for _, v := range votes {
		if !v.Assigned {
			continue
		}
		switch v.Status {
		case ApprovalStatusRejected:
			return ApprovalStatusRejected
		case ApprovalStatusApproved:
			// 继续检查其余角色
		default:
			allApproved = false
		}
	}
	if allApproved {
		return ApprovalStatusApproved
	}
	return ApprovalStatusPending
}
