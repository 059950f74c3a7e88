package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"rentledger/internal/model"
	"rentledger/internal/repository"

	"gorm.io/gorm"
)

// AuditMeta 请求上下文信息
type AuditMeta struct {
	IP        string
	UserAgent string
}

// AuditService 审计记录器
//
// 【关键点】审计失败只记日志，绝不向调用方传播：
// 审计不能阻塞或回滚财务操作，但写入必须被尝试，失败必须留痕
type AuditService struct {
	auditRepo *repository.AuditRepository
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{
		auditRepo: repository.NewAuditRepository(db),
	}
}

// Record 追加一条审计日志
// before/after 为实体快照，落库的 diff 只包含值发生变化的字段
func (s *AuditService) Record(ctx context.Context, actor *int64, action, entityType, entityID string, before, after map[string]interface{}, meta *AuditMeta) {
	diff := ComputeDiff(before, after)

	diffBytes, err := json.Marshal(diff)
	if err != nil {
		log.Printf("[Audit] 序列化差异失败: action=%s, entity=%s/%s, err=%v", action, entityType, entityID, err)
		return
	}

	entry := &model.AuditLog{
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Diff:       string(diffBytes),
		CreatedAt:  time.Now(),
	}
	if meta != nil {
		entry.IP = meta.IP
		entry.UserAgent = meta.UserAgent
	}

	if err := s.auditRepo.Create(ctx, entry); err != nil {
		log.Printf("[Audit] 写入审计日志失败: action=%s, entity=%s/%s, err=%v", action, entityType, entityID, err)
	}
}

// ListByEntity 查询某实体的审计轨迹
func (s *AuditService) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*model.AuditLog, error) {
	return s.auditRepo.ListByEntity(ctx, entityType, entityID, limit)
}

// Purge 清理早于 before 的日志
func (s *AuditService) Purge(ctx context.Context, before time.Time) (int64, error) {
	return s.auditRepo.PurgeOlderThan(ctx, before)
}

// FieldChange 单个字段的变更
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// ComputeDiff 计算结构化差异，只保留值发生变化的字段
func ComputeDiff(before, after map[string]interface{}) map[string]FieldChange {
	diff := make(map[string]FieldChange)

	for key, newVal := range after {
		oldVal, exists := before[key]
		if !exists || !jsonEqual(oldVal, newVal) {
			diff[key] = FieldChange{Old: oldVal, New: newVal}
		}
	}
	for key, oldVal := range before {
		if _, exists := after[key]; !exists {
			diff[key] = FieldChange{Old: oldVal, New: nil}
		}
	}

	return diff
}

// jsonEqual 以 JSON 序列化结果比较两个值，规避数值类型不一致的问题
func jsonEqual(a, b interface{}) bool {
	aBytes, errA := json.Marshal(a)
	bBytes, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aBytes) == string(bBytes)
}
