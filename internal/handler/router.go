package handler

import (
	"rentledger/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 租户相关
		tenant := api.Group("/tenant")
		{
			tenant.POST("/onboard", h.OnboardTenant)
			tenant.GET("/detail", h.GetTenant)
			tenant.GET("/list", h.ListTenants)
			tenant.POST("/escalate", h.EscalateTenant)
			tenant.POST("/vacate", h.VacateTenant)
		}

		// 台账相关
		ledger := api.Group("/ledger")
		{
			ledger.POST("/post-rent", h.PostRent)
			ledger.GET("/outstanding", h.Outstanding)
			ledger.GET("/history", h.LedgerHistory)
		}

		// 水表抄表
		reading := api.Group("/reading")
		{
			reading.POST("/record", h.RecordReading)
			reading.GET("/list", h.ListReadings)
		}

		// 支付相关
		payment := api.Group("/payment")
		{
			payment.POST("/submit", h.SubmitPayment)
			payment.POST("/verify", h.VerifyPayment)
			payment.POST("/cancel", h.CancelPayment)
			payment.GET("/detail", h.GetPayment)
			payment.GET("/list", h.ListPayments)
			payment.GET("/pending", h.ListPendingPayments)
		}

		// 收据相关
		receipt := api.Group("/receipt")
		{
			receipt.GET("/detail", h.GetReceipt)
			receipt.POST("/download", h.DownloadReceipt)
			receipt.POST("/rematerialize", h.RematerializeReceipt)
		}

		// 运营看板
		dashboard := api.Group("/dashboard")
		{
			dashboard.GET("/summary", h.Dashboard)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
