package handler

import (
	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/service"
	"github.com/gin-gonic/gin"
)

// NotificationHandler 站内通知接口
type NotificationHandler struct {
	svc *service.NotificationService
}

func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// List 查询我的通知列表
// GET /api/v1/notifications?unread_only=true&page=&page_size=
func (h *NotificationHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	unreadOnly := c.Query("unread_only") == "true"

	items, total, err := h.svc.ListByUser(c.Request.Context(), GetUserID(c), page, pageSize, unreadOnly)
	if err != nil {
		InternalError(c, "查询通知列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{Items: items, Pagination: NewPagination(page, pageSize, total)})
}

// UnreadCount 查询未读通知数
// GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.svc.CountUnread(c.Request.Context(), GetUserID(c))
	if err != nil {
		InternalError(c, "查询未读数失败: "+err.Error())
		return
	}
	Success(c, gin.H{"count": count})
}

// MarkRead 标记单条通知已读
// PUT /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.svc.MarkRead(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		NotFound(c, "通知不存在")
		return
	}
	Success(c, nil)
}

// MarkAllRead 标记全部通知已读
// PUT /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	if err := h.svc.MarkAllRead(c.Request.Context(), GetUserID(c)); err != nil {
		InternalError(c, "标记已读失败: "+err.Error())
		return
	}
	Success(c, nil)
}
