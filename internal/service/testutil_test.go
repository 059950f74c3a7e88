package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"rentledger/internal/config"
	"rentledger/internal/infrastructure/database"
	"rentledger/internal/infrastructure/renderer"
	"rentledger/internal/model"
	"rentledger/pkg/idgen"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var idgenOnce sync.Once

// setupTestDB 用临时文件 SQLite 建一套完整表结构
// _busy_timeout 让并发写入排队等锁而不是直接报错
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	idgenOnce.Do(func() { idgen.Init(1) })

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// stubRenderer 渲染器打桩：不写文件，只返回路径
type stubRenderer struct {
	mu    sync.Mutex
	calls []string // 渲染过的收据号
}

func (r *stubRenderer) Render(_ context.Context, rc *renderer.RenderContext) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, rc.ReceiptNo)
	return "/tmp/receipts/" + rc.ReceiptNo + ".txt", nil
}

// flakyRenderer 前 failures 次渲染失败，之后成功
type flakyRenderer struct {
	failures int
	calls    int
}

func (r *flakyRenderer) Render(_ context.Context, rc *renderer.RenderContext) (string, error) {
	r.calls++
	if r.calls <= r.failures {
		return "", errors.New("渲染服务不可用")
	}
	return "/tmp/receipts/" + rc.ReceiptNo + ".txt", nil
}

// newTestPaymentService 测试不接 Redis（分布式锁按未配置处理）
func newTestPaymentService(t *testing.T, db *gorm.DB, rdr renderer.Renderer) *PaymentService {
	t.Helper()
	if rdr == nil {
		rdr = &stubRenderer{}
	}
	return NewPaymentService(db, nil, rdr, config.Default())
}

var testUnitSeq int
var testUnitMu sync.Mutex

// onboardTestTenant 入住一个月租 150 元、水价 3.5 元/吨的租户
func onboardTestTenant(t *testing.T, db *gorm.DB, audit *AuditService) *model.Tenant {
	t.Helper()

	testUnitMu.Lock()
	testUnitSeq++
	unit := fmt.Sprintf("3-%03d", testUnitSeq)
	testUnitMu.Unlock()

	tenant, err := NewTenantService(db, audit).Onboard(context.Background(), &OnboardRequest{
		Name:        "张三",
		Phone:       "13800000000",
		Unit:        unit,
		MonthlyRent: 15000,
		WaterRate:   350,
	})
	require.NoError(t, err)
	return tenant
}
