package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/entity"
	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/repository"
	"github.com/redis/go-redis/v9"
)

// 提醒窗口：距开工/截止 29~31 分钟时触发一次提醒。
// 窗口宽度(2分钟)大于调度间隔(1分钟)，保证不会漏扫；
// 重复扫到由存在性检查+(permit_id,type)部分唯一索引保证只发一条。
const (
	reminderWindowNear = 29 * time.Minute
	reminderWindowFar  = 31 * time.Minute

	// 多实例部署时的调度互斥锁
	reminderLockKey = "ptw:reminder:scan:lock"
	reminderLockTTL = 55 * time.Second
)

// ScanResult 单次提醒扫描的统计
type ScanResult struct {
	StartReminders  int `json:"start_reminders_sent"`
	ExpiryReminders int `json:"expiry_reminders_sent"`
}

// ReminderService 时间提醒调度：按分钟扫描临近开工/到期的许可单。
// RunScan 接受显式时间参数，测试中可注入模拟时钟。
type ReminderService struct {
	repos    *repository.Repositories
	notifier *NotificationService
	rdb      *redis.Client // 可为nil：单实例部署无需分布式锁
}

// NewReminderService 创建提醒调度服务
func NewReminderService(repos *repository.Repositories, notifier *NotificationService, rdb *redis.Client) *ReminderService {
	return &ReminderService{repos: repos, notifier: notifier, rdb: rdb}
}

// RunScan 执行一轮提醒扫描。
// 单个许可单的通知写入失败只记日志并继续，下一轮存在性检查
// 仍为false，天然形成重试。
func (s *ReminderService) RunScan(ctx context.Context, now time.Time) (ScanResult, error) {
	var result ScanResult

	// 多实例时抢调度锁，抢不到说明本轮已有实例在扫
	if s.rdb != nil {
		ok, err := s.rdb.SetNX(ctx, reminderLockKey, now.Format(time.RFC3339), reminderLockTTL).Result()
		if err != nil {
			log.Printf("[Reminder] 获取调度锁失败，降级为直接扫描: %v", err)
		} else if !ok {
			return result, nil
		}
	}

	windowFrom := now.Add(reminderWindowNear)
	windowTo := now.Add(reminderWindowFar)

	// 开工提醒：approved/active 且 start_time 落入窗口
	startCandidates, err := s.repos.Permit.FindStartingBetween(ctx,
		[]string{entity.PermitStatusApproved, entity.PermitStatusActive},
		windowFrom, windowTo)
	if err != nil {
		return result, fmt.Errorf("扫描临近开工许可单失败: %w", err)
	}
	for i := range startCandidates {
		permit := &startCandidates[i]
		sent, err := s.remindOnce(ctx, permit, entity.NotificationTypeReminderStart,
			fmt.Sprintf("许可单 %s（%s）将于 %s 开工，请做好作业准备",
				permit.Serial, permit.Title, permit.StartTime.Format("2006-01-02 15:04")))
		if err != nil {
			log.Printf("[Reminder] 开工提醒失败 (permit=%s): %v", permit.Serial, err)
			continue
		}
		if sent {
			result.StartReminders++
		}
	}

	// 到期提醒：active 且 end_time 落入窗口
	expiryCandidates, err := s.repos.Permit.FindExpiringBetween(ctx,
		[]string{entity.PermitStatusActive},
		windowFrom, windowTo)
	if err != nil {
		return result, fmt.Errorf("扫描临近到期许可单失败: %w", err)
	}
	for i := range expiryCandidates {
		permit := &expiryCandidates[i]
		sent, err := s.remindOnce(ctx, permit, entity.NotificationTypeReminderEnd,
			fmt.Sprintf("许可单 %s（%s）将于 %s 到期，请及时收尾或申请延期",
				permit.Serial, permit.Title, permit.EndTime.Format("2006-01-02 15:04")))
		if err != nil {
			log.Printf("[Reminder] 到期提醒失败 (permit=%s): %v", permit.Serial, err)
			continue
		}
		if sent {
			result.ExpiryReminders++
		}
	}

	if result.StartReminders > 0 || result.ExpiryReminders > 0 {
		log.Printf("[Reminder] 扫描完成: 开工提醒 %d 条, 到期提醒 %d 条",
			result.StartReminders, result.ExpiryReminders)
	}
	return result, nil
}

// remindOnce 为单个许可单发送至多一条指定类型的提醒。
// 先做存在性检查；并发调度下的check-then-act竞态由
// (permit_id, type) 部分唯一索引兜底，违反约束按已发送处理。
func (s *ReminderService) remindOnce(ctx context.Context, permit *entity.Permit, ntype, message string) (bool, error) {
	exists, err := s.notifier.Exists(ctx, permit.ID, ntype)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err := s.notifier.Create(ctx, permit.CreatedBy, permit, ntype, message); err != nil {
		// 唯一索引冲突说明另一轮扫描恰好先写入了同一条提醒
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
