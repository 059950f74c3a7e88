package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"rentledger/internal/config"
	"rentledger/internal/infrastructure/lock"
	"rentledger/internal/infrastructure/renderer"
	"rentledger/internal/model"
	"rentledger/internal/repository"
	"rentledger/pkg/billing"
	"rentledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount  = errors.New("金额必须大于 0")
	ErrInvalidMonth   = errors.New("账期格式不合法，应为 YYYY-MM")
	ErrInvalidType    = errors.New("支付类型不合法")
	ErrInvalidOutcome = errors.New("审核结论不合法")
)

// PaymentService 支付单状态机
//
// PENDING -> {VERIFIED, REJECTED, CANCELLED}，终态不可再流转。
// 提交不动钱；只有审核通过才产生财务影响（核销租金 / 结清水费 / 出具收据）
type PaymentService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	tenantRepo  *repository.TenantRepository
	paymentRepo *repository.PaymentRepository
	readingRepo *repository.ReadingRepository
	outboxRepo  *repository.OutboxRepository
	ledger      *LedgerService
	receipts    *ReceiptService
	audit       *AuditService
}

func NewPaymentService(db *gorm.DB, redisClient *redis.Client, rdr renderer.Renderer, cfg *config.Config) *PaymentService {
	audit := NewAuditService(db)
	return &PaymentService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		tenantRepo:  repository.NewTenantRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		readingRepo: repository.NewReadingRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		ledger:      NewLedgerService(db, cfg, audit),
		receipts:    NewReceiptService(db, redisClient, rdr, cfg),
		audit:       audit,
	}
}

// Ledger 暴露台账服务（查询余额 / 记租用）
func (s *PaymentService) Ledger() *LedgerService {
	return s.ledger
}

// Receipts 暴露收据服务
func (s *PaymentService) Receipts() *ReceiptService {
	return s.receipts
}

// Audit 暴露审计服务
func (s *PaymentService) Audit() *AuditService {
	return s.audit
}

// ============================================================
// 提交
// ============================================================

type SubmitRequest struct {
	TenantID     int64
	Type         string
	Method       string
	Amount       int64
	Month        string
	EvidenceRefs []string // 凭证文件引用（外部文件服务持有）
	Meta         *AuditMeta
}

// Submit 租户提交付款凭据，支付单进入 PENDING
//
// WATER 类型在提交时预关联该账期未结清的读数（不结清——
// 结清只发生在审核通过的事务里）。RENT 提交不改余额
func (s *PaymentService) Submit(ctx context.Context, req *SubmitRequest) (*model.Payment, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !billing.ValidMonthKey(req.Month) {
		return nil, ErrInvalidMonth
	}
	if !model.IsValidPaymentType(req.Type) {
		return nil, ErrInvalidType
	}

	tenant, err := s.tenantRepo.GetByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant.Status == model.TenantStatusFormer {
		return nil, repository.ErrTenantInactive
	}

	evidence, err := json.Marshal(req.EvidenceRefs)
	if err != nil {
		return nil, fmt.Errorf("序列化凭证引用失败: %w", err)
	}

	payment := &model.Payment{
		PaymentNo:    idgen.GeneratePaymentNo(),
		TenantID:     tenant.ID,
		Type:         req.Type,
		Method:       req.Method,
		Amount:       req.Amount,
		Month:        req.Month,
		Status:       model.PaymentStatusPending,
		EvidenceRefs: string(evidence),
	}

	var reading *model.WaterReading
	if req.Type == model.PaymentTypeWater {
		reading, err = s.readingRepo.GetByTenantAndMonth(ctx, tenant.ID, req.Month)
		if err != nil {
			return nil, err
		}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return fmt.Errorf("创建支付单失败: %w", err)
		}

		if reading != nil && !reading.Paid {
			if err := s.readingRepo.LinkPayment(ctx, tx, reading.ID, payment.ID); err != nil {
				return fmt.Errorf("预关联水表读数失败: %w", err)
			}
		}

		return s.enqueueOutbox(ctx, tx, model.EventPaymentSubmitted, s.cfg.Kafka.Topic.PaymentSubmitted,
			payment.PaymentNo, map[string]interface{}{
				"payment_no": payment.PaymentNo,
				"tenant_no":  tenant.TenantNo,
				"type":       payment.Type,
				"amount":     payment.Amount,
				"month":      payment.Month,
				"status":     payment.Status,
			})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, nil, "payment.submit", "payment", payment.PaymentNo,
		map[string]interface{}{},
		map[string]interface{}{"status": payment.Status, "type": payment.Type, "amount": payment.Amount, "month": payment.Month},
		req.Meta,
	)

	log.Printf("支付单已提交: paymentNo=%s, tenantNo=%s, type=%s, amount=%d",
		payment.PaymentNo, tenant.TenantNo, payment.Type, payment.Amount)

	return payment, nil
}

// ============================================================
// 审核
// ============================================================

type VerifyRequest struct {
	PaymentNo  string
	VerifierID int64
	Outcome    string // VERIFIED / REJECTED
	Notes      string
	Meta       *AuditMeta
}

// Verify 审核支付单
//
// 【关键点】审核是整个系统最核心的操作，需要保证：
// 1. 恰好一次：同一支付单只能被审核一次（分布式锁 + 状态前置条件 UPDATE 双保险）
// 2. 原子性：支付单置 VERIFIED、收据落库、核销余额 / 结清水费必须同时成功或同时失败
// 3. 可重试：任何一步失败整个事务回滚，支付单留在 PENDING，重新审核是安全的
//
// 收据序号预占和文件渲染发生在事务之前：事务回滚时序号作废（允许空洞），
// 不会出现两张收据共用一个号，也不会留下指向未用序号的孤儿文件歧义
func (s *PaymentService) Verify(ctx context.Context, req *VerifyRequest) (*model.Payment, error) {
	if req.Outcome != model.PaymentStatusVerified && req.Outcome != model.PaymentStatusRejected {
		return nil, ErrInvalidOutcome
	}

	payment, err := s.paymentRepo.GetByPaymentNo(ctx, req.PaymentNo)
	if err != nil {
		return nil, err
	}
	if payment.Status != model.PaymentStatusPending {
		return nil, repository.ErrPaymentNotPending
	}

	// 同一支付单的审核串行化
	if s.redisClient != nil {
		verifyLock := lock.NewVerifyLock(s.redisClient, req.PaymentNo, uuid.NewString())
		if err := verifyLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer verifyLock.Unlock(ctx)

		// 获取锁后重新读取状态
		payment, err = s.paymentRepo.GetByPaymentNo(ctx, req.PaymentNo)
		if err != nil {
			return nil, err
		}
		if payment.Status != model.PaymentStatusPending {
			return nil, repository.ErrPaymentNotPending
		}
	}

	if req.Outcome == model.PaymentStatusRejected {
		return s.reject(ctx, payment, req)
	}
	return s.approve(ctx, payment, req)
}

// reject 审核驳回：只改状态，无任何财务副作用
func (s *PaymentService) reject(ctx context.Context, payment *model.Payment, req *VerifyRequest) (*model.Payment, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.TransitionStatus(ctx, tx, payment.PaymentNo,
			model.PaymentStatusPending, model.PaymentStatusRejected,
			map[string]interface{}{
				"verified_by": req.VerifierID,
				"admin_notes": req.Notes,
			}); err != nil {
			return err
		}

		return s.enqueueOutbox(ctx, tx, model.EventPaymentOutcome, s.cfg.Kafka.Topic.PaymentResult,
			payment.PaymentNo, map[string]interface{}{
				"payment_no": payment.PaymentNo,
				"status":     model.PaymentStatusRejected,
				"notes":      req.Notes,
			})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &req.VerifierID, "payment.reject", "payment", payment.PaymentNo,
		map[string]interface{}{"status": model.PaymentStatusPending},
		map[string]interface{}{"status": model.PaymentStatusRejected, "notes": req.Notes},
		req.Meta,
	)

	log.Printf("支付单已驳回: paymentNo=%s, verifier=%d", payment.PaymentNo, req.VerifierID)
	return s.paymentRepo.GetByPaymentNo(ctx, payment.PaymentNo)
}

// approve 审核通过：出具收据 + 核销租金 / 结清水费，单事务落地
func (s *PaymentService) approve(ctx context.Context, payment *model.Payment, req *VerifyRequest) (*model.Payment, error) {
	tenant, err := s.tenantRepo.GetByID(ctx, payment.TenantID)
	if err != nil {
		return nil, err
	}

	// WATER 结清目标读数：优先取提交时预关联的那条
	var reading *model.WaterReading
	if payment.Type == model.PaymentTypeWater {
		reading, err = s.readingRepo.GetByTenantAndMonth(ctx, payment.TenantID, payment.Month)
		if err != nil {
			return nil, err
		}
		if reading == nil {
			return nil, repository.ErrReadingNotFound
		}
		if reading.Paid {
			return nil, repository.ErrReadingPaid
		}
	}

	// 预占序号 + 渲染文件（失败则整个审核失败，支付单保持 PENDING）
	receipt, err := s.receipts.Issue(ctx, payment, tenant, reading)
	if err != nil {
		return nil, err
	}

	// 乐观锁冲突时有界重试整个审核事务；
	// 收据序号与文件在重试间复用，不重复发号
	creditReq := &ApplyDeltaRequest{
		TenantID:  tenant.ID,
		Delta:     -payment.Amount,
		Type:      model.LedgerEntryTypeCredit,
		PaymentNo: payment.PaymentNo,
		Remark:    fmt.Sprintf("租金核销-%s", payment.Month),
		ClampZero: true,
	}
	var newBalance int64

	maxRetries := s.cfg.Business.MaxRetryCount
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.paymentRepo.TransitionStatus(ctx, tx, payment.PaymentNo,
				model.PaymentStatusPending, model.PaymentStatusVerified,
				map[string]interface{}{
					"verified_by": req.VerifierID,
					"admin_notes": req.Notes,
				}); err != nil {
				return err
			}

			if err := s.receipts.Persist(ctx, tx, receipt); err != nil {
				return fmt.Errorf("收据落库失败: %w", err)
			}

			switch payment.Type {
			case model.PaymentTypeRent:
				var deltaErr error
				if newBalance, deltaErr = s.ledger.ApplyDelta(ctx, tx, creditReq); deltaErr != nil {
					return deltaErr
				}
			case model.PaymentTypeWater:
				// 水费不走租金余额（两条欠款轨道），只结清读数
				if err := s.readingRepo.MarkPaid(ctx, tx, reading.ID, payment.ID); err != nil {
					return err
				}
			}

			if err := s.enqueueOutbox(ctx, tx, model.EventPaymentOutcome, s.cfg.Kafka.Topic.PaymentResult,
				payment.PaymentNo, map[string]interface{}{
					"payment_no": payment.PaymentNo,
					"status":     model.PaymentStatusVerified,
					"receipt_no": receipt.ReceiptNo,
				}); err != nil {
				return err
			}

			return s.enqueueOutbox(ctx, tx, model.EventReceiptReady, s.cfg.Kafka.Topic.ReceiptReady,
				receipt.ReceiptNo, map[string]interface{}{
					"receipt_no": receipt.ReceiptNo,
					"payment_no": payment.PaymentNo,
					"tenant_no":  tenant.TenantNo,
					"amount":     payment.Amount,
				})
		})
		if !errors.Is(err, repository.ErrOptimisticLock) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &req.VerifierID, "payment.verify", "payment", payment.PaymentNo,
		map[string]interface{}{"status": model.PaymentStatusPending},
		map[string]interface{}{"status": model.PaymentStatusVerified, "receipt_no": receipt.ReceiptNo},
		req.Meta,
	)
	if payment.Type == model.PaymentTypeRent {
		s.ledger.RecordBalanceAudit(ctx, &req.VerifierID, creditReq, newBalance)
	}

	log.Printf("支付单审核通过: paymentNo=%s, receiptNo=%s, verifier=%d, amount=%d",
		payment.PaymentNo, receipt.ReceiptNo, req.VerifierID, payment.Amount)

	return s.paymentRepo.GetByPaymentNo(ctx, payment.PaymentNo)
}

// ============================================================
// 取消
// ============================================================

// Cancel 管理员取消支付单，仅限 PENDING；此时尚无财务影响，无需冲正
func (s *PaymentService) Cancel(ctx context.Context, paymentNo string, actor int64, meta *AuditMeta) error {
	payment, err := s.paymentRepo.GetByPaymentNo(ctx, paymentNo)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.TransitionStatus(ctx, tx, paymentNo,
			model.PaymentStatusPending, model.PaymentStatusCancelled, nil); err != nil {
			return err
		}

		return s.enqueueOutbox(ctx, tx, model.EventPaymentOutcome, s.cfg.Kafka.Topic.PaymentResult,
			paymentNo, map[string]interface{}{
				"payment_no": paymentNo,
				"status":     model.PaymentStatusCancelled,
			})
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, &actor, "payment.cancel", "payment", paymentNo,
		map[string]interface{}{"status": payment.Status},
		map[string]interface{}{"status": model.PaymentStatusCancelled},
		meta,
	)

	log.Printf("支付单已取消: paymentNo=%s", paymentNo)
	return nil
}

// ============================================================
// 查询
// ============================================================

func (s *PaymentService) Get(ctx context.Context, paymentNo string) (*model.Payment, error) {
	return s.paymentRepo.GetByPaymentNo(ctx, paymentNo)
}

func (s *PaymentService) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	return s.paymentRepo.GetByID(ctx, id)
}

// DashboardSummary 运营看板汇总
type DashboardSummary struct {
	PendingPayments  int64 `json:"pending_payments"`  // 待审核支付单数
	VerifiedPayments int64 `json:"verified_payments"` // 已审核通过数
	CurrentTenants   int64 `json:"current_tenants"`   // 正常租户数
	OverdueTenants   int64 `json:"overdue_tenants"`   // 逾期租户数（含拖欠）
	TotalArrears     int64 `json:"total_arrears"`     // 在欠租金总额（分）
}

func (s *PaymentService) DashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	pending, err := s.paymentRepo.CountByStatus(ctx, model.PaymentStatusPending)
	if err != nil {
		return nil, err
	}
	verified, err := s.paymentRepo.CountByStatus(ctx, model.PaymentStatusVerified)
	if err != nil {
		return nil, err
	}
	current, err := s.tenantRepo.CountByStatus(ctx, model.TenantStatusCurrent)
	if err != nil {
		return nil, err
	}
	overdue, err := s.tenantRepo.CountByStatus(ctx, model.TenantStatusOverdue)
	if err != nil {
		return nil, err
	}
	delinquent, err := s.tenantRepo.CountByStatus(ctx, model.TenantStatusDelinquent)
	if err != nil {
		return nil, err
	}
	arrears, err := s.tenantRepo.TotalArrears(ctx)
	if err != nil {
		return nil, err
	}

	return &DashboardSummary{
		PendingPayments:  pending,
		VerifiedPayments: verified,
		CurrentTenants:   current,
		OverdueTenants:   overdue + delinquent,
		TotalArrears:     arrears,
	}, nil
}

func (s *PaymentService) ListByTenant(ctx context.Context, tenantID int64, page, pageSize int) ([]*model.Payment, int64, error) {
	return s.paymentRepo.ListByTenant(ctx, tenantID, page, pageSize)
}

func (s *PaymentService) ListPending(ctx context.Context, page, pageSize int) ([]*model.Payment, int64, error) {
	return s.paymentRepo.ListByStatus(ctx, model.PaymentStatusPending, page, pageSize)
}

// enqueueOutbox 在事务内写本地消息表，由 OutboxSender 异步投递
func (s *PaymentService) enqueueOutbox(ctx context.Context, tx *gorm.DB, eventType, topic, key string, payload map[string]interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	msg := &model.OutboxMessage{
		EventType:  eventType,
		MessageKey: key,
		Topic:      topic,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
