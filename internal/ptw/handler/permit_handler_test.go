package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/repository"
	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/service"
	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/testutil"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func setupPermitTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	testutil.SeedTestUser(t, db, "user-creator", "张工")
	testutil.SeedTestUser(t, db, "user-so", "安全员B")
	testutil.SeedTestUser(t, db, "user-sl", "站点负责人C")

	repos := repository.NewRepositories(db)
	svc := service.NewServices(db, repos, nil, nil)
	h := NewHandlers(svc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")

	api.POST("/permits", h.Permit.Submit)
	api.GET("/permits", h.Permit.List)
	api.GET("/permits/:id", h.Permit.Get)
	api.POST("/permits/:id/decision", h.Permit.Decide)
	api.POST("/permits/:id/close", h.Permit.Close)
	api.GET("/approvals/pending", h.Permit.ListMyPending)
	api.POST("/permits/:id/extensions", h.Extension.Request)
	api.POST("/extensions/:id/decision", h.Extension.Decide)
	api.GET("/notifications", h.Notification.List)

	return router, db
}

func permitPayload(safetyOfficerID string) map[string]interface{} {
	now := time.Now()
	body := map[string]interface{}{
		"title":      "动火作业-管道焊接",
		"work_type":  "hot_work",
		"location":   "2号车间",
		"start_time": now.Add(time.Hour).Format(time.RFC3339),
		"end_time":   now.Add(9 * time.Hour).Format(time.RFC3339),
	}
	if safetyOfficerID != "" {
		body["safety_officer_id"] = safetyOfficerID
	}
	return body
}

func submitPermit(t *testing.T, router *gin.Engine, token string, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(router, "POST", "/api/v1/permits", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit permit: status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("submit permit: missing data in response %v", resp)
	}
	return data
}

func TestPermitSubmitAndApproveFlow(t *testing.T) {
	router, _ := setupPermitTest(t)
	creatorToken := testutil.GenerateTestToken("user-creator", "张工", "creator@test.com", nil)
	soToken := testutil.GenerateTestToken("user-so", "安全员B", "so@test.com", nil)

	data := submitPermit(t, router, creatorToken, permitPayload("user-so"))
	permitID := data["id"].(string)
	if data["status"] != "pending_approval" {
		t.Errorf("status = %v, want pending_approval", data["status"])
	}
	if data["serial"] == "" {
		t.Errorf("serial should be generated")
	}

	// 安全员在待办列表中能看到该单
	w := testutil.DoRequest(router, "GET", "/api/v1/approvals/pending", nil, soToken)
	if w.Code != http.StatusOK {
		t.Fatalf("pending list: status = %d", w.Code)
	}
	pending := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(pending) != 1 {
		t.Fatalf("pending approvals = %d, want 1", len(pending))
	}

	// 安全员审批通过 → active
	w = testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/permits/%s/decision", permitID),
		map[string]string{"role": "safety_officer", "decision": "approve", "comment": "同意"}, soToken)
	if w.Code != http.StatusOK {
		t.Fatalf("decision: status = %d, body = %s", w.Code, w.Body.String())
	}
	decided := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if decided["status"] != "active" {
		t.Errorf("status after approval = %v, want active", decided["status"])
	}

	// 发起人收到会签通过通知
	w = testutil.DoRequest(router, "GET", "/api/v1/notifications", nil, creatorToken)
	if w.Code != http.StatusOK {
		t.Fatalf("notifications: status = %d", w.Code)
	}
	notes := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	found := false
	for _, n := range notes {
		if n.(map[string]interface{})["type"] == "APPROVED" {
			found = true
		}
	}
	if !found {
		t.Errorf("creator should receive an APPROVED notification, got %v", notes)
	}

	// 详情含操作日志
	w = testutil.DoRequest(router, "GET", "/api/v1/permits/"+permitID, nil, creatorToken)
	if w.Code != http.StatusOK {
		t.Fatalf("get permit: status = %d", w.Code)
	}
	detail := testutil.ParseResponse(w)["data"].(map[string]interface{})
	logs := detail["activity_logs"].([]interface{})
	if len(logs) != 2 {
		t.Errorf("activity logs = %d, want 2 (submit + approve)", len(logs))
	}
}

func TestPermitErrorMapping(t *testing.T) {
	router, _ := setupPermitTest(t)
	creatorToken := testutil.GenerateTestToken("user-creator", "张工", "creator@test.com", nil)
	soToken := testutil.GenerateTestToken("user-so", "安全员B", "so@test.com", nil)
	slToken := testutil.GenerateTestToken("user-sl", "站点负责人C", "sl@test.com", nil)

	// 未认证
	w := testutil.DoRequest(router, "POST", "/api/v1/permits", permitPayload("user-so"), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	// 参数校验失败 → 40000
	bad := permitPayload("user-so")
	bad["end_time"] = bad["start_time"]
	w = testutil.DoRequest(router, "POST", "/api/v1/permits", bad, creatorToken)
	if w.Code != http.StatusBadRequest {
		t.Errorf("end == start: status = %d, want 400", w.Code)
	}
	if code := testutil.ParseResponse(w)["code"].(float64); code != 40000 {
		t.Errorf("end == start: code = %v, want 40000", code)
	}

	data := submitPermit(t, router, creatorToken, permitPayload("user-so"))
	permitID := data["id"].(string)

	// 不存在的许可单 → 40400
	w = testutil.DoRequest(router, "GET", "/api/v1/permits/no-such-id", nil, creatorToken)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing permit: status = %d, want 404", w.Code)
	}

	// 未被指派的用户冒用角色 → 40300
	w = testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/permits/%s/decision", permitID),
		map[string]string{"role": "safety_officer", "decision": "approve", "comment": "同意"}, slToken)
	if w.Code != http.StatusForbidden {
		t.Errorf("impersonation: status = %d, want 403", w.Code)
	}

	// pending_approval 状态不能申请延期 → 40900
	w = testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/permits/%s/extensions", permitID),
		map[string]string{
			"new_end_time": time.Now().Add(12 * time.Hour).Format(time.RFC3339),
			"reason":       "需要延期",
		}, creatorToken)
	if w.Code != http.StatusConflict {
		t.Errorf("extension on pending permit: status = %d, want 409", w.Code)
	}
	if code := testutil.ParseResponse(w)["code"].(float64); code != 40900 {
		t.Errorf("extension on pending permit: code = %v, want 40900", code)
	}

	// 驳回后终态不可变 → 40900
	w = testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/permits/%s/decision", permitID),
		map[string]string{"role": "safety_officer", "decision": "reject", "comment": "措施不到位"}, soToken)
	if w.Code != http.StatusOK {
		t.Fatalf("reject: status = %d, body = %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/permits/%s/close", permitID), nil, creatorToken)
	if w.Code != http.StatusConflict {
		t.Errorf("close rejected permit: status = %d, want 409", w.Code)
	}
}

func TestPermitListFilters(t *testing.T) {
	router, _ := setupPermitTest(t)
	creatorToken := testutil.GenerateTestToken("user-creator", "张工", "creator@test.com", nil)

	// 无审批人 → 直接active；有审批人 → pending_approval
	submitPermit(t, router, creatorToken, permitPayload(""))
	submitPermit(t, router, creatorToken, permitPayload("user-so"))

	w := testutil.DoRequest(router, "GET", "/api/v1/permits?status=active", nil, creatorToken)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d", w.Code)
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	if len(items) != 1 {
		t.Errorf("active permits = %d, want 1", len(items))
	}
	pagination := data["pagination"].(map[string]interface{})
	if pagination["total"].(float64) != 1 {
		t.Errorf("pagination total = %v, want 1", pagination["total"])
	}
}
