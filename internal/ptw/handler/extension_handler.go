package handler

import (
	"time"

	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/service"
	"github.com/gin-gonic/gin"
)

// ExtensionHandler 延期申请接口
type ExtensionHandler struct {
	svc *service.ExtensionService
}

func NewExtensionHandler(svc *service.ExtensionService) *ExtensionHandler {
	return &ExtensionHandler{svc: svc}
}

// requestExtensionReq 发起延期请求体
type requestExtensionReq struct {
	NewEndTime time.Time `json:"new_end_time" binding:"required"`
	Reason     string    `json:"reason" binding:"required"`
}

// Request 发起延期申请
// POST /api/v1/permits/:id/extensions
func (h *ExtensionHandler) Request(c *gin.Context) {
	var req requestExtensionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数有误: "+err.Error())
		return
	}

	ext, err := h.svc.Request(c.Request.Context(), c.Param("id"), req.NewEndTime, req.Reason, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, ext)
}

// ListByPermit 查询某许可单的延期申请
// GET /api/v1/permits/:id/extensions
func (h *ExtensionHandler) ListByPermit(c *gin.Context) {
	items, err := h.svc.ListByPermit(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "查询延期申请失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}

// Decide 记录延期审批动作
// POST /api/v1/extensions/:id/decision
func (h *ExtensionHandler) Decide(c *gin.Context) {
	var req decisionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数有误: "+err.Error())
		return
	}

	ext, err := h.svc.RecordDecision(c.Request.Context(),
		c.Param("id"), req.Role, req.Decision, GetUserID(c), req.Comment)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ext)
}

// ListMyPending 查询我的待审批延期申请
// GET /api/v1/extensions/pending
func (h *ExtensionHandler) ListMyPending(c *gin.Context) {
	items, err := h.svc.ListMyPendingApprovals(c.Request.Context(), GetUserID(c))
	if err != nil {
		InternalError(c, "查询待审批延期失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}
