package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/entity"
)

// activePermitWithExtApprovers 建一张 active 许可单（指派站点负责人+安全员）
func activePermitWithExtApprovers(t *testing.T, svc *Services) *entity.Permit {
	t.Helper()
	ctx := context.Background()
	permit, err := svc.Permit.Submit(ctx, submitPermitReq(strPtr("user-so"), strPtr("user-sl"), nil), "user-creator")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := svc.Permit.RecordDecision(ctx, permit.ID, entity.RoleSafetyOfficer, DecisionApprove, "user-so", "同意"); err != nil {
		t.Fatalf("safety officer approve failed: %v", err)
	}
	permit, err = svc.Permit.RecordDecision(ctx, permit.ID, entity.RoleSiteLeader, DecisionApprove, "user-sl", "同意")
	if err != nil {
		t.Fatalf("site leader approve failed: %v", err)
	}
	if permit.Status != entity.PermitStatusActive {
		t.Fatalf("precondition: permit status = %s, want active", permit.Status)
	}
	return permit
}

func TestExtensionApprovedExtendsEndTime(t *testing.T) {
	db, svc := setupServiceTest(t)
	ctx := context.Background()

	permit := activePermitWithExtApprovers(t, svc)
	newEnd := permit.EndTime.Add(2 * time.Hour)

	ext, err := svc.Extension.Request(ctx, permit.ID, newEnd, "作业量超出预期，需要加班完成", "user-creator")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if ext.Status != entity.ExtensionStatusRequested {
		t.Fatalf("ext status = %s, want extension_requested", ext.Status)
	}

	var parent entity.Permit
	db.First(&parent, "id = ?", permit.ID)
	if parent.Status != entity.PermitStatusExtensionRequested {
		t.Fatalf("permit status = %s, want extension_requested", parent.Status)
	}

	// 两个延期角色依次通过
	if _, err := svc.Extension.RecordDecision(ctx, ext.ID, entity.RoleSiteLeader, DecisionApprove, "user-sl", "同意延期"); err != nil {
		t.Fatalf("site leader approve failed: %v", err)
	}
	ext, err = svc.Extension.RecordDecision(ctx, ext.ID, entity.RoleSafetyOfficer, DecisionApprove, "user-so", "同意延期")
	if err != nil {
		t.Fatalf("safety officer approve failed: %v", err)
	}
	if ext.Status != entity.ExtensionStatusApproved {
		t.Errorf("ext status = %s, want approved", ext.Status)
	}

	db.First(&parent, "id = ?", permit.ID)
	if parent.Status != entity.PermitStatusActive {
		t.Errorf("permit status = %s, want active", parent.Status)
	}
	if !parent.EndTime.Equal(newEnd) {
		t.Errorf("permit end time = %v, want %v", parent.EndTime, newEnd)
	}

	var notes []entity.Notification
	db.Where("permit_id = ? AND type = ?", permit.ID, entity.NotificationTypeExtensionApproved).Find(&notes)
	if len(notes) != 1 {
		t.Errorf("EXTENSION_APPROVED notifications = %d, want 1", len(notes))
	}
}

func TestExtensionRejectedKeepsEndTime(t *testing.T) {
	db, svc := setupServiceTest(t)
	ctx := context.Background()

	permit := activePermitWithExtApprovers(t, svc)
	originalEnd := permit.EndTime

	ext, err := svc.Extension.Request(ctx, permit.ID, originalEnd.Add(4*time.Hour), "设备故障待修", "user-creator")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	// 一票驳回即终结，无需等另一角色
	ext, err = svc.Extension.RecordDecision(ctx, ext.ID, entity.RoleSafetyOfficer, DecisionReject, "user-so", "夜间作业风险过高")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if ext.Status != entity.ExtensionStatusRejected {
		t.Errorf("ext status = %s, want rejected", ext.Status)
	}
	if ext.ResultComment != "夜间作业风险过高" {
		t.Errorf("result comment = %q, want 驳回原因", ext.ResultComment)
	}

	var parent entity.Permit
	db.First(&parent, "id = ?", permit.ID)
	if parent.Status != entity.PermitStatusActive {
		t.Errorf("permit status = %s, want active", parent.Status)
	}
	if !parent.EndTime.Equal(originalEnd) {
		t.Errorf("permit end time changed on rejection: %v != %v", parent.EndTime, originalEnd)
	}

	// 已终结的延期单不能再审批
	if _, err := svc.Extension.RecordDecision(ctx, ext.ID, entity.RoleSiteLeader, DecisionApprove, "user-sl", "同意"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("decision on settled extension: err = %v, want ErrInvalidState", err)
	}

	// 驳回后可以再次发起
	if _, err := svc.Extension.Request(ctx, permit.ID, originalEnd.Add(time.Hour), "重新协调了作业计划", "user-creator"); err != nil {
		t.Errorf("re-request after rejection failed: %v", err)
	}
}

func TestExtensionRequestGuards(t *testing.T) {
	_, svc := setupServiceTest(t)
	ctx := context.Background()

	permit := activePermitWithExtApprovers(t, svc)
	newEnd := permit.EndTime.Add(2 * time.Hour)

	// 原因必填
	if _, err := svc.Extension.Request(ctx, permit.ID, newEnd, "  ", "user-creator"); !errors.Is(err, ErrValidation) {
		t.Errorf("blank reason: err = %v, want ErrValidation", err)
	}
	// 新截止时间必须晚于当前截止时间
	if _, err := svc.Extension.Request(ctx, permit.ID, permit.EndTime, "延期", "user-creator"); !errors.Is(err, ErrValidation) {
		t.Errorf("newEnd == end: err = %v, want ErrValidation", err)
	}
	// 仅申请人可发起
	if _, err := svc.Extension.Request(ctx, permit.ID, newEnd, "延期", "user-so"); !errors.Is(err, ErrForbidden) {
		t.Errorf("request by non-creator: err = %v, want ErrForbidden", err)
	}
	// 不存在的许可单
	if _, err := svc.Extension.Request(ctx, "no-such-id", newEnd, "延期", "user-creator"); !errors.Is(err, ErrPermitNotFound) {
		t.Errorf("missing permit: err = %v, want ErrPermitNotFound", err)
	}

	// 在途延期存在时不允许再次发起
	if _, err := svc.Extension.Request(ctx, permit.ID, newEnd, "第一次延期", "user-creator"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if _, err := svc.Extension.Request(ctx, permit.ID, newEnd.Add(time.Hour), "第二次延期", "user-creator"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second open request: err = %v, want ErrInvalidState", err)
	}
}

func TestExtensionDecisionGuards(t *testing.T) {
	_, svc := setupServiceTest(t)
	ctx := context.Background()

	permit := activePermitWithExtApprovers(t, svc)
	ext, err := svc.Extension.Request(ctx, permit.ID, permit.EndTime.Add(2*time.Hour), "需要延期", "user-creator")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	// 区域负责人不参与延期会签
	if _, err := svc.Extension.RecordDecision(ctx, ext.ID, entity.RoleAreaManager, DecisionApprove, "user-am", "同意"); !errors.Is(err, ErrValidation) {
		t.Errorf("area manager role: err = %v, want ErrValidation", err)
	}
	// 非被指派人冒用角色
	if _, err := svc.Extension.RecordDecision(ctx, ext.ID, entity.RoleSiteLeader, DecisionApprove, "user-so", "同意"); !errors.Is(err, ErrForbidden) {
		t.Errorf("impersonation: err = %v, want ErrForbidden", err)
	}
	// 同一角色不能重复表态
	if _, err := svc.Extension.RecordDecision(ctx, ext.ID, entity.RoleSiteLeader, DecisionApprove, "user-sl", "同意"); err != nil {
		t.Fatalf("first decision failed: %v", err)
	}
	if _, err := svc.Extension.RecordDecision(ctx, ext.ID, entity.RoleSiteLeader, DecisionApprove, "user-sl", "再次同意"); !errors.Is(err, ErrForbidden) {
		t.Errorf("duplicate vote: err = %v, want ErrForbidden", err)
	}
	// 不存在的延期单
	if _, err := svc.Extension.RecordDecision(ctx, "no-such-id", entity.RoleSiteLeader, DecisionApprove, "user-sl", "同意"); !errors.Is(err, ErrExtensionNotFound) {
		t.Errorf("missing extension: err = %v, want ErrExtensionNotFound", err)
	}
}

func TestExtensionOnInactivePermit(t *testing.T) {
	_, svc := setupServiceTest(t)
	ctx := context.Background()

	// pending_approval 状态不能申请延期
	permit, err := svc.Permit.Submit(ctx, submitPermitReq(strPtr("user-so"), nil, nil), "user-creator")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := svc.Extension.Request(ctx, permit.ID, permit.EndTime.Add(time.Hour), "延期", "user-creator"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("extension on pending permit: err = %v, want ErrInvalidState", err)
	}
}

func TestExtensionAutoApprovedWithoutApprovers(t *testing.T) {
	db, svc := setupServiceTest(t)
	ctx := context.Background()

	// 无审批人的许可单提交即active，延期同样即刻通过
	permit, err := svc.Permit.Submit(ctx, submitPermitReq(nil, nil, nil), "user-creator")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	newEnd := permit.EndTime.Add(3 * time.Hour)

	ext, err := svc.Extension.Request(ctx, permit.ID, newEnd, "自动延期", "user-creator")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if ext.Status != entity.ExtensionStatusApproved {
		t.Errorf("ext status = %s, want approved (空会签自动通过)", ext.Status)
	}

	var parent entity.Permit
	db.First(&parent, "id = ?", permit.ID)
	if parent.Status != entity.PermitStatusActive {
		t.Errorf("permit status = %s, want active", parent.Status)
	}
	if !parent.EndTime.Equal(newEnd) {
		t.Errorf("permit end time = %v, want %v", parent.EndTime, newEnd)
	}
}

func TestCloseVoidsOpenExtension(t *testing.T) {
	db, svc := setupServiceTest(t)
	ctx := context.Background()

	permit := activePermitWithExtApprovers(t, svc)
	ext, err := svc.Extension.Request(ctx, permit.ID, permit.EndTime.Add(2*time.Hour), "需要延期", "user-creator")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	// extension_requested 状态下关闭许可单，在途延期一并作废
	if _, err := svc.Permit.Close(ctx, permit.ID, "user-creator"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var stored entity.ExtensionRequest
	db.First(&stored, "id = ?", ext.ID)
	if stored.Status != entity.ExtensionStatusRejected {
		t.Errorf("ext status = %s, want rejected (作废)", stored.Status)
	}
	if stored.ResultComment == "" {
		t.Errorf("voided extension should carry a result comment")
	}
}

// 关闭与延期审批都按"先许可单、后延期单"的顺序加锁，
// 两路并发时必须串行落定，任何一方都不允许因死锁中止报存储错误。
func TestConcurrentCloseAndExtensionDecision(t *testing.T) {
	db, svc := setupServiceTest(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		permit := activePermitWithExtApprovers(t, svc)
		ext, err := svc.Extension.Request(ctx, permit.ID, permit.EndTime.Add(2*time.Hour), "工期顺延", "user-creator")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}

		var wg sync.WaitGroup
		var closeErr, decideErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, closeErr = svc.Permit.Close(ctx, permit.ID, "user-creator")
		}()
		go func() {
			defer wg.Done()
			_, decideErr = svc.Extension.RecordDecision(ctx, ext.ID, entity.RoleSiteLeader, DecisionReject, "user-sl", "现场条件不允许")
		}()
		wg.Wait()

		// 关闭在 active 与 extension_requested 下都合法，必须成功
		if closeErr != nil {
			t.Fatalf("round %d: Close failed: %v", i, closeErr)
		}
		// 审批要么赶在关闭前落定，要么发现延期单已被作废
		if decideErr != nil && !errors.Is(decideErr, ErrInvalidState) {
			t.Fatalf("round %d: RecordDecision unexpected error: %v", i, decideErr)
		}

		var storedPermit entity.Permit
		db.First(&storedPermit, "id = ?", permit.ID)
		if storedPermit.Status != entity.PermitStatusClosed {
			t.Errorf("round %d: permit status = %s, want closed", i, storedPermit.Status)
		}
		var storedExt entity.ExtensionRequest
		db.First(&storedExt, "id = ?", ext.ID)
		if storedExt.Status != entity.ExtensionStatusRejected {
			t.Errorf("round %d: ext status = %s, want rejected", i, storedExt.Status)
		}
	}
}
