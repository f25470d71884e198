package handler

import (
	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/service"
	"github.com/gin-gonic/gin"
)

// PermitHandler 许可单接口
type PermitHandler struct {
	svc *service.PermitService
}

func NewPermitHandler(svc *service.PermitService) *PermitHandler {
	return &PermitHandler{svc: svc}
}

// Submit 提交许可单
// POST /api/v1/permits
func (h *PermitHandler) Submit(c *gin.Context) {
	var req service.SubmitPermitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数有误: "+err.Error())
		return
	}

	permit, err := h.svc.Submit(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, permit)
}

// List 查询许可单列表
// GET /api/v1/permits?status=&created_by=&work_type=&page=&page_size=
func (h *PermitHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":     c.Query("status"),
		"created_by": c.Query("created_by"),
		"work_type":  c.Query("work_type"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "查询许可单列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{Items: items, Pagination: NewPagination(page, pageSize, total)})
}

// Get 查询许可单详情
// GET /api/v1/permits/:id
func (h *PermitHandler) Get(c *gin.Context) {
	permit, logs, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"permit": permit, "activity_logs": logs})
}

// decisionReq 审批动作请求体
type decisionReq struct {
	Role     string `json:"role" binding:"required"`
	Decision string `json:"decision" binding:"required"` // approve / reject
	Comment  string `json:"comment"`                     // 通过时为签名，驳回时为原因
}

// Decide 记录审批动作
// POST /api/v1/permits/:id/decision
func (h *PermitHandler) Decide(c *gin.Context) {
	var req decisionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数有误: "+err.Error())
		return
	}

	permit, err := h.svc.RecordDecision(c.Request.Context(),
		c.Param("id"), req.Role, req.Decision, GetUserID(c), req.Comment)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, permit)
}

// Close 关闭许可单
// POST /api/v1/permits/:id/close
func (h *PermitHandler) Close(c *gin.Context) {
	permit, err := h.svc.Close(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, permit)
}

// ListMyPending 查询我的待审批许可单
// GET /api/v1/approvals/pending
func (h *PermitHandler) ListMyPending(c *gin.Context) {
	items, err := h.svc.ListMyPendingApprovals(c.Request.Context(), GetUserID(c))
	if err != nil {
		InternalError(c, "查询待审批列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}
