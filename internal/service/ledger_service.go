package service

import (
	"context"
	"errors"
	"fmt"

	"rentledger/internal/config"
	"rentledger/internal/model"
	"rentledger/internal/repository"
	"rentledger/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrInvalidDelta = errors.New("变动金额不能为 0")
)

// LedgerService 租金台账
//
// 【账务模型】租户的 balance 字段只记租金欠款；水费欠款单独体现为
// 未结清的水表读数，二者不混在同一个余额里。对外的"总欠款"等于
// 租金余额加上未结水费之和
type LedgerService struct {
	db          *gorm.DB
	cfg         *config.Config
	tenantRepo  *repository.TenantRepository
	ledgerRepo  *repository.LedgerRepository
	readingRepo *repository.ReadingRepository
	audit       *AuditService
}

func NewLedgerService(db *gorm.DB, cfg *config.Config, audit *AuditService) *LedgerService {
	return &LedgerService{
		db:          db,
		cfg:         cfg,
		tenantRepo:  repository.NewTenantRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		readingRepo: repository.NewReadingRepository(db),
		audit:       audit,
	}
}

// ApplyDeltaRequest 余额变更请求
type ApplyDeltaRequest struct {
	TenantID  int64
	Delta     int64  // 正数计租，负数核销
	Type      string // LedgerEntryType*
	PaymentNo string // 收款核销必填
	Remark    string
	ClampZero bool // 收款核销置 true：多缴不产生负余额（不记租户预存）
}

// ApplyDelta 在给定事务内执行一次余额变更，返回变更后余额
//
// 读-算-写走版本校验的单条 UPDATE（见 TenantRepository），
// 并发冲突返回 ErrOptimisticLock，由调用方在事务外有界重试
func (s *LedgerService) ApplyDelta(ctx context.Context, tx *gorm.DB, req *ApplyDeltaRequest) (int64, error) {
	if req.Delta == 0 {
		return 0, ErrInvalidDelta
	}

	tenant, err := s.tenantRepo.GetByID(ctx, req.TenantID)
	if err != nil {
		return 0, err
	}
	if tenant.Status == model.TenantStatusFormer {
		return 0, repository.ErrTenantInactive
	}

	newBalance := tenant.Balance + req.Delta
	if req.ClampZero && newBalance < 0 {
		newBalance = 0
	}
	newStatus := model.DeriveTenantStatus(tenant.Status, newBalance)

	if err := s.tenantRepo.UpdateBalanceAndStatus(ctx, tx, tenant.ID, newBalance, newStatus, tenant.Version); err != nil {
		return 0, err
	}

	entry := &model.LedgerEntry{
		EntryNo:       idgen.GenerateEntryNo(),
		TenantID:      tenant.ID,
		PaymentNo:     req.PaymentNo,
		Delta:         req.Delta,
		Type:          req.Type,
		BalanceBefore: tenant.Balance,
		BalanceAfter:  newBalance,
		Remark:        req.Remark,
	}
	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("记录租金流水失败: %w", err)
	}

	// 审计在事务提交后由调用方补记（见 ApplyDeltaWithRetry / 审核流程）：
	// 审计走独立连接，事务内写会和未提交的事务互相等锁
	return newBalance, nil
}

// ApplyDeltaWithRetry 独立事务执行余额变更，乐观锁冲突时有界重试
func (s *LedgerService) ApplyDeltaWithRetry(ctx context.Context, req *ApplyDeltaRequest) (int64, error) {
	var newBalance int64
	var err error

	maxRetries := s.cfg.Business.MaxRetryCount
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = s.db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			newBalance, txErr = s.ApplyDelta(ctx, tx, req)
			return txErr
		})
		if !errors.Is(err, repository.ErrOptimisticLock) {
			break
		}
	}

	if err != nil {
		return 0, err
	}

	s.RecordBalanceAudit(ctx, nil, req, newBalance)
	return newBalance, nil
}

// RecordBalanceAudit 事务提交后补记一条余额变更审计
func (s *LedgerService) RecordBalanceAudit(ctx context.Context, actor *int64, req *ApplyDeltaRequest, newBalance int64) {
	tenant, err := s.tenantRepo.GetByID(ctx, req.TenantID)
	if err != nil {
		return
	}

	s.audit.Record(ctx, actor, "ledger.apply_delta", "tenant", tenant.TenantNo,
		map[string]interface{}{},
		map[string]interface{}{
			"delta":      req.Delta,
			"type":       req.Type,
			"payment_no": req.PaymentNo,
			"balance":    newBalance,
			"status":     tenant.Status,
		},
		nil,
	)
}

// PostMonthlyRent 为租户记一个账期的租金
func (s *LedgerService) PostMonthlyRent(ctx context.Context, tenantID int64, month string) (int64, error) {
	tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	return s.ApplyDeltaWithRetry(ctx, &ApplyDeltaRequest{
		TenantID: tenantID,
		Delta:    tenant.MonthlyRent,
		Type:     model.LedgerEntryTypeCharge,
		Remark:   fmt.Sprintf("计租-%s", month),
	})
}

// OutstandingDetail 租户欠款明细
type OutstandingDetail struct {
	RentBalance int64 `json:"rent_balance"` // 租金欠款
	WaterDue    int64 `json:"water_due"`    // 未结水费
	Total       int64 `json:"total"`
}

// Outstanding 汇总两条欠款轨道
func (s *LedgerService) Outstanding(ctx context.Context, tenantID int64) (*OutstandingDetail, error) {
	tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	waterDue, err := s.readingRepo.SumUnpaid(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return &OutstandingDetail{
		RentBalance: tenant.Balance,
		WaterDue:    waterDue,
		Total:       tenant.Balance + waterDue,
	}, nil
}

// History 租金流水
func (s *LedgerService) History(ctx context.Context, tenantID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	return s.ledgerRepo.ListByTenant(ctx, tenantID, page, pageSize)
}
