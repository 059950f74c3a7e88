package handler

import (
	"errors"
	"strconv"

	"rentledger/internal/config"
	"rentledger/internal/infrastructure/renderer"
	"rentledger/internal/model"
	"rentledger/internal/repository"
	"rentledger/internal/service"
	"rentledger/pkg/billing"
	"rentledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	tenantService  *service.TenantService
	readingService *service.ReadingService
	paymentService *service.PaymentService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	paymentService := service.NewPaymentService(db, rdb, renderer.NewFileRenderer(cfg.Business.ArtifactDir), cfg)
	audit := paymentService.Audit()

	return &Handler{
		tenantService:  service.NewTenantService(db, audit),
		readingService: service.NewReadingService(db, audit),
		paymentService: paymentService,
	}
}

// auditMeta 从请求提取审计上下文
func auditMeta(c *gin.Context) *service.AuditMeta {
	return &service.AuditMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// writeBusinessError 把服务层错误映射为业务错误码
func writeBusinessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrTenantNotFound):
		response.BusinessError(c, response.CodeTenantNotFound, err.Error())
	case errors.Is(err, repository.ErrPaymentNotFound):
		response.BusinessError(c, response.CodePaymentNotFound, err.Error())
	case errors.Is(err, repository.ErrPaymentNotPending):
		response.BusinessError(c, response.CodePaymentNotPending, err.Error())
	case errors.Is(err, repository.ErrDuplicateReading):
		response.BusinessError(c, response.CodeDuplicateReading, err.Error())
	case errors.Is(err, repository.ErrReadingNotFound):
		response.BusinessError(c, response.CodeReadingNotFound, err.Error())
	case errors.Is(err, repository.ErrReceiptExists), errors.Is(err, repository.ErrReadingPaid):
		response.BusinessError(c, response.CodeReceiptExists, err.Error())
	case errors.Is(err, repository.ErrReceiptNotFound):
		response.BusinessError(c, response.CodeReceiptNotFound, err.Error())
	case errors.Is(err, repository.ErrOptimisticLock):
		response.BusinessError(c, response.CodeConcurrentConflict, err.Error())
	case errors.Is(err, billing.ErrInvalidReading):
		response.BusinessError(c, response.CodeInvalidReading, err.Error())
	case errors.Is(err, service.ErrRenderFailed):
		// 审核未生效，支付单仍为待审核，可安全重试
		response.BusinessError(c, response.CodeRenderFailed, "收据生成失败，审核未生效，支付单仍为待审核，请重试")
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidMonth),
		errors.Is(err, service.ErrInvalidType),
		errors.Is(err, service.ErrInvalidOutcome),
		errors.Is(err, service.ErrInvalidEscalation),
		errors.Is(err, repository.ErrUnitOccupied),
		errors.Is(err, repository.ErrTenantInactive):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 租户相关接口
// ============================================================

// OnboardTenantRequest 入住请求
type OnboardTenantRequest struct {
	Name        string `json:"name" binding:"required"`
	Phone       string `json:"phone"`
	Unit        string `json:"unit" binding:"required"`
	MonthlyRent int64  `json:"monthly_rent" binding:"required,gt=0"`
	WaterRate   int64  `json:"water_rate" binding:"gte=0"`
}

// OnboardTenant 租户入住
// POST /api/v1/tenant/onboard
func (h *Handler) OnboardTenant(c *gin.Context) {
	var req OnboardTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	tenant, err := h.tenantService.Onboard(c.Request.Context(), &service.OnboardRequest{
		Name:        req.Name,
		Phone:       req.Phone,
		Unit:        req.Unit,
		MonthlyRent: req.MonthlyRent,
		WaterRate:   req.WaterRate,
		Meta:        auditMeta(c),
	})
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, tenant)
}

// GetTenant 查询租户（含欠款明细）
// GET /api/v1/tenant/detail?tenant_id=xxx
func (h *Handler) GetTenant(c *gin.Context) {
	tenantID, err := strconv.ParseInt(c.Query("tenant_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "tenant_id 参数错误")
		return
	}

	tenant, err := h.tenantService.Get(c.Request.Context(), tenantID)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	outstanding, err := h.paymentService.Ledger().Outstanding(c.Request.Context(), tenantID)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"tenant":      tenant,
		"outstanding": outstanding,
	})
}

// ListTenants 租户列表
// GET /api/v1/tenant/list?page=1&page_size=10
func (h *Handler) ListTenants(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	tenants, total, err := h.tenantService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      tenants,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// EscalateTenant 人工状态升级
// POST /api/v1/tenant/escalate
func (h *Handler) EscalateTenant(c *gin.Context) {
	var req struct {
		TenantID int64  `json:"tenant_id" binding:"required"`
		ToStatus string `json:"to_status" binding:"required"`
		ActorID  int64  `json:"actor_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.tenantService.Escalate(c.Request.Context(), req.TenantID, req.ToStatus, req.ActorID, auditMeta(c)); err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "状态已更新"})
}

// VacateTenant 退租
// POST /api/v1/tenant/vacate
func (h *Handler) VacateTenant(c *gin.Context) {
	var req struct {
		TenantID int64 `json:"tenant_id" binding:"required"`
		ActorID  int64 `json:"actor_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	archive, err := h.tenantService.Vacate(c.Request.Context(), req.TenantID, req.ActorID, auditMeta(c))
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, archive)
}

// ============================================================
// 台账相关接口
// ============================================================

// PostRent 记一个账期的租金
// POST /api/v1/ledger/post-rent
func (h *Handler) PostRent(c *gin.Context) {
	var req struct {
		TenantID int64  `json:"tenant_id" binding:"required"`
		Month    string `json:"month" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if !billing.ValidMonthKey(req.Month) {
		response.ParamError(c, "账期格式不合法，应为 YYYY-MM")
		return
	}

	newBalance, err := h.paymentService.Ledger().PostMonthlyRent(c.Request.Context(), req.TenantID, req.Month)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{"balance": newBalance})
}

// Outstanding 欠款明细（租金余额 + 未结水费）
// GET /api/v1/ledger/outstanding?tenant_id=xxx
func (h *Handler) Outstanding(c *gin.Context) {
	tenantID, err := strconv.ParseInt(c.Query("tenant_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "tenant_id 参数错误")
		return
	}

	detail, err := h.paymentService.Ledger().Outstanding(c.Request.Context(), tenantID)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, detail)
}

// LedgerHistory 租金流水
// GET /api/v1/ledger/history?tenant_id=xxx&page=1&page_size=10
func (h *Handler) LedgerHistory(c *gin.Context) {
	tenantID, err := strconv.ParseInt(c.Query("tenant_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "tenant_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	entries, total, err := h.paymentService.Ledger().History(c.Request.Context(), tenantID, page, pageSize)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 抄表相关接口
// ============================================================

// RecordReadingRequest 抄表请求
type RecordReadingRequest struct {
	TenantID int64  `json:"tenant_id" binding:"required"`
	Month    string `json:"month" binding:"required"`
	Previous *int64 `json:"previous"` // 省略时取上次表底
	Current  int64  `json:"current" binding:"gte=0"`
}

// RecordReading 录入水表读数
// POST /api/v1/reading/record
func (h *Handler) RecordReading(c *gin.Context) {
	var req RecordReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	reading, err := h.readingService.Record(c.Request.Context(), &service.RecordReadingRequest{
		TenantID: req.TenantID,
		Month:    req.Month,
		Previous: req.Previous,
		Current:  req.Current,
		Meta:     auditMeta(c),
	})
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, reading)
}

// ListReadings 读数列表
// GET /api/v1/reading/list?tenant_id=xxx&page=1&page_size=10
func (h *Handler) ListReadings(c *gin.Context) {
	tenantID, err := strconv.ParseInt(c.Query("tenant_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "tenant_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	readings, total, err := h.readingService.ListByTenant(c.Request.Context(), tenantID, page, pageSize)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      readings,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 支付相关接口
// ============================================================

// SubmitPaymentRequest 提交付款凭据请求
type SubmitPaymentRequest struct {
	TenantID     int64    `json:"tenant_id" binding:"required"`
	Type         string   `json:"type" binding:"required"`
	Method       string   `json:"method"`
	Amount       int64    `json:"amount" binding:"required,gt=0"`
	Month        string   `json:"month" binding:"required"`
	EvidenceRefs []string `json:"evidence_refs"`
}

// SubmitPayment 提交付款凭据
// POST /api/v1/payment/submit
func (h *Handler) SubmitPayment(c *gin.Context) {
	var req SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	payment, err := h.paymentService.Submit(c.Request.Context(), &service.SubmitRequest{
		TenantID:     req.TenantID,
		Type:         req.Type,
		Method:       req.Method,
		Amount:       req.Amount,
		Month:        req.Month,
		EvidenceRefs: req.EvidenceRefs,
		Meta:         auditMeta(c),
	})
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"payment_no": payment.PaymentNo,
		"status":     payment.Status,
		"amount":     payment.Amount,
	})
}

// VerifyPaymentRequest 审核请求
type VerifyPaymentRequest struct {
	PaymentNo  string `json:"payment_no" binding:"required"`
	VerifierID int64  `json:"verifier_id" binding:"required"`
	Outcome    string `json:"outcome" binding:"required"` // VERIFIED / REJECTED
	Notes      string `json:"notes"`
}

// VerifyPayment 审核支付单
// POST /api/v1/payment/verify
//
// 审核中途失败（如收据渲染失败）支付单保持 PENDING，
// 响应会明确提示"审核未生效"，操作员可安全重试
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	payment, err := h.paymentService.Verify(c.Request.Context(), &service.VerifyRequest{
		PaymentNo:  req.PaymentNo,
		VerifierID: req.VerifierID,
		Outcome:    req.Outcome,
		Notes:      req.Notes,
		Meta:       auditMeta(c),
	})
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, payment)
}

// CancelPayment 取消支付单
// POST /api/v1/payment/cancel
func (h *Handler) CancelPayment(c *gin.Context) {
	var req struct {
		PaymentNo string `json:"payment_no" binding:"required"`
		ActorID   int64  `json:"actor_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.paymentService.Cancel(c.Request.Context(), req.PaymentNo, req.ActorID, auditMeta(c)); err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "支付单已取消"})
}

// GetPayment 查询支付单详情
// GET /api/v1/payment/detail?payment_no=xxx
func (h *Handler) GetPayment(c *gin.Context) {
	paymentNo := c.Query("payment_no")
	if paymentNo == "" {
		response.ParamError(c, "payment_no 参数不能为空")
		return
	}

	payment, err := h.paymentService.Get(c.Request.Context(), paymentNo)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, payment)
}

// ListPayments 查询租户支付单列表
// GET /api/v1/payment/list?tenant_id=xxx&page=1&page_size=10
func (h *Handler) ListPayments(c *gin.Context) {
	tenantID, err := strconv.ParseInt(c.Query("tenant_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "tenant_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	payments, total, err := h.paymentService.ListByTenant(c.Request.Context(), tenantID, page, pageSize)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      payments,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListPendingPayments 待审核队列
// GET /api/v1/payment/pending?page=1&page_size=10
func (h *Handler) ListPendingPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	payments, total, err := h.paymentService.ListPending(c.Request.Context(), page, pageSize)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      payments,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 收据相关接口
// ============================================================

// GetReceipt 查询收据
// GET /api/v1/receipt/detail?receipt_no=xxx
func (h *Handler) GetReceipt(c *gin.Context) {
	receiptNo := c.Query("receipt_no")
	if receiptNo == "" {
		response.ParamError(c, "receipt_no 参数不能为空")
		return
	}

	receipt, err := h.paymentService.Receipts().Get(c.Request.Context(), receiptNo)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, receipt)
}

// DownloadReceipt 下载收据（打点后返回文件位置）
// POST /api/v1/receipt/download
func (h *Handler) DownloadReceipt(c *gin.Context) {
	var req struct {
		ReceiptNo string `json:"receipt_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	receipts := h.paymentService.Receipts()
	if err := receipts.MarkDownloaded(c.Request.Context(), req.ReceiptNo); err != nil {
		writeBusinessError(c, err)
		return
	}

	receipt, err := receipts.Get(c.Request.Context(), req.ReceiptNo)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"receipt_no":    receipt.ReceiptNo,
		"artifact_path": receipt.ArtifactPath,
	})
}

// RematerializeReceipt 收据文件丢失后重新渲染
// POST /api/v1/receipt/rematerialize
func (h *Handler) RematerializeReceipt(c *gin.Context) {
	var req struct {
		ReceiptNo string `json:"receipt_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	receipts := h.paymentService.Receipts()

	receipt, err := receipts.Get(ctx, req.ReceiptNo)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	payment, err := h.paymentService.GetByID(ctx, receipt.PaymentID)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	tenant, err := h.tenantService.Get(ctx, receipt.TenantID)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	var reading *model.WaterReading
	if payment.Type == model.PaymentTypeWater {
		reading, err = h.readingService.GetByTenantAndMonth(ctx, payment.TenantID, payment.Month)
		if err != nil {
			writeBusinessError(c, err)
			return
		}
	}

	path, err := receipts.Rematerialize(ctx, req.ReceiptNo, payment, tenant, reading)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"receipt_no":    req.ReceiptNo,
		"artifact_path": path,
	})
}

// ============================================================
// 看板接口
// ============================================================

// Dashboard 运营看板
// GET /api/v1/dashboard/summary
func (h *Handler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	summary, err := h.paymentService.DashboardSummary(ctx)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, summary)
}
