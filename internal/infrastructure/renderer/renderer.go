package renderer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rentledger/internal/model"
)

// RenderContext 渲染收据所需的事实快照
type RenderContext struct {
	ReceiptNo string
	Payment   *model.Payment
	Tenant    *model.Tenant
	Reading   *model.WaterReading // 水费收据附带读数信息，其余类型为 nil
	IssuedAt  time.Time
}

// Renderer 收据文件渲染器
//
// 渲染器是外部协作方：同样的入参可以重复调用（收据文件丢失后
// 用同一收据号重新渲染，不重新发号）
type Renderer interface {
	Render(ctx context.Context, rc *RenderContext) (string, error)
}

// FileRenderer 把收据渲染为本地文本文件
// 生产环境可替换为 PDF 渲染服务，核心只关心返回的文件位置
type FileRenderer struct {
	dir string
}

func NewFileRenderer(dir string) *FileRenderer {
	return &FileRenderer{dir: dir}
}

func (r *FileRenderer) Render(ctx context.Context, rc *RenderContext) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("创建收据目录失败: %w", err)
	}

	path := filepath.Join(r.dir, rc.ReceiptNo+".txt")

	content := fmt.Sprintf("收据编号: %s\n租户: %s (%s)\n房号: %s\n支付单号: %s\n类型: %s\n金额: %d.%02d 元\n账期: %s\n出具时间: %s\n",
		rc.ReceiptNo,
		rc.Tenant.Name,
		rc.Tenant.TenantNo,
		rc.Tenant.Unit,
		rc.Payment.PaymentNo,
		rc.Payment.Type,
		rc.Payment.Amount/100, rc.Payment.Amount%100,
		rc.Payment.Month,
		rc.IssuedAt.Format(time.RFC3339),
	)
	if rc.Reading != nil {
		content += fmt.Sprintf("水表读数: %d -> %d，用量 %d，单价 %d 分/吨\n",
			rc.Reading.Previous, rc.Reading.Current, rc.Reading.Units, rc.Reading.Rate)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("写入收据文件失败: %w", err)
	}
	return path, nil
}
