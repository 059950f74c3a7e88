package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentledger/internal/config"
	"rentledger/internal/infrastructure/lock"
	"rentledger/internal/infrastructure/renderer"
	"rentledger/internal/model"
	"rentledger/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrRenderFailed = errors.New("收据文件生成失败")
)

// ReceiptService 收据发号与出具
//
// 【关键点】发号与审核主事务分离：
// 序号在独立事务内预占并立即提交，之后才渲染收据文件、走审核事务。
// 任何一步失败，预占的序号作废不复用——宁可年内序列留下一个因失败
// 烧掉的空号，也不允许一个序号先后指向两个不同的收据文件
type ReceiptService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	renderer    renderer.Renderer
	receiptRepo *repository.ReceiptRepository
}

func NewReceiptService(db *gorm.DB, redisClient *redis.Client, rdr renderer.Renderer, cfg *config.Config) *ReceiptService {
	return &ReceiptService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		renderer:    rdr,
		receiptRepo: repository.NewReceiptRepository(db),
	}
}

// Issue 为支付单出具收据：预占序号并渲染收据文件
//
// 返回的 Receipt 尚未落库，由调用方在审核事务内持久化，
// 使"收据落库"与"支付单置为已审核"同生共死。
// 支付单已有收据时返回 ErrReceiptExists，且不消耗序号
func (s *ReceiptService) Issue(ctx context.Context, payment *model.Payment, tenant *model.Tenant, reading *model.WaterReading) (*model.Receipt, error) {
	existing, err := s.receiptRepo.GetByPaymentID(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, repository.ErrReceiptExists
	}

	now := time.Now()
	prefix := s.cfg.Business.ReceiptPrefix
	year := now.Year()

	// 按（前缀，年份）串行化发号
	if s.redisClient != nil {
		seqLock := lock.NewReceiptSeqLock(s.redisClient, prefix, year, uuid.NewString())
		if err := seqLock.Lock(ctx, 50*time.Millisecond, 40); err != nil {
			return nil, fmt.Errorf("获取发号锁失败: %w", err)
		}
		defer seqLock.Unlock(ctx)
	}

	next, err := s.receiptRepo.ReserveSequence(ctx, prefix, year)
	if err != nil {
		return nil, fmt.Errorf("预占收据序号失败: %w", err)
	}

	receiptNo := fmt.Sprintf("%s-%d-%04d", prefix, year, next)

	// 渲染失败整单失败：审核不允许在没有收据的情况下悄悄成功
	path, err := s.renderer.Render(ctx, &renderer.RenderContext{
		ReceiptNo: receiptNo,
		Payment:   payment,
		Tenant:    tenant,
		Reading:   reading,
		IssuedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	return &model.Receipt{
		ReceiptNo:    receiptNo,
		PaymentID:    payment.ID,
		TenantID:     tenant.ID,
		Amount:       payment.Amount,
		ArtifactPath: path,
		GeneratedAt:  now,
	}, nil
}

// Persist 在调用方事务内落库收据
func (s *ReceiptService) Persist(ctx context.Context, tx *gorm.DB, receipt *model.Receipt) error {
	return s.receiptRepo.Create(ctx, tx, receipt)
}

// Rematerialize 收据文件丢失后重新渲染
//
// 沿用已分配的收据号，不发新号；渲染器对相同入参可重复调用
func (s *ReceiptService) Rematerialize(ctx context.Context, receiptNo string, payment *model.Payment, tenant *model.Tenant, reading *model.WaterReading) (string, error) {
	receipt, err := s.receiptRepo.GetByReceiptNo(ctx, receiptNo)
	if err != nil {
		return "", err
	}

	path, err := s.renderer.Render(ctx, &renderer.RenderContext{
		ReceiptNo: receipt.ReceiptNo,
		Payment:   payment,
		Tenant:    tenant,
		Reading:   reading,
		IssuedAt:  receipt.GeneratedAt,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	if err := s.receiptRepo.UpdateArtifactPath(ctx, receipt.ReceiptNo, path); err != nil {
		return "", err
	}
	return path, nil
}

// Get 按收据号查询
func (s *ReceiptService) Get(ctx context.Context, receiptNo string) (*model.Receipt, error) {
	return s.receiptRepo.GetByReceiptNo(ctx, receiptNo)
}

// GetByPayment 按支付单查询
func (s *ReceiptService) GetByPayment(ctx context.Context, paymentID int64) (*model.Receipt, error) {
	return s.receiptRepo.GetByPaymentID(ctx, paymentID)
}

// MarkDownloaded 下载打点
func (s *ReceiptService) MarkDownloaded(ctx context.Context, receiptNo string) error {
	return s.receiptRepo.MarkDownloaded(ctx, receiptNo)
}
