package job

import (
	"context"
	"log"
	"time"

	"rentledger/internal/config"
	"rentledger/internal/repository"

	"gorm.io/gorm"
)

// AuditPurgeJob 按保留期限清理审计日志
//
// 审计日志只追加不修改；唯一的删除路径就是这里的到期清理
type AuditPurgeJob struct {
	db        *gorm.DB
	auditRepo *repository.AuditRepository
	cfg       *config.Config
	stopCh    chan struct{}
	interval  time.Duration
}

func NewAuditPurgeJob(db *gorm.DB, cfg *config.Config) *AuditPurgeJob {
	return &AuditPurgeJob{
		db:        db,
		auditRepo: repository.NewAuditRepository(db),
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		interval:  24 * time.Hour,
	}
}

func (j *AuditPurgeJob) Start(ctx context.Context) {
	log.Println("[AuditPurgeJob] 审计日志清理任务启动")

	// 启动时先跑一次，之后按天执行
	j.purge(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[AuditPurgeJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[AuditPurgeJob] 任务停止")
			return
		case <-ticker.C:
			j.purge(ctx)
		}
	}
}

func (j *AuditPurgeJob) Stop() {
	close(j.stopCh)
}

func (j *AuditPurgeJob) purge(ctx context.Context) {
	retention := time.Duration(j.cfg.Business.AuditRetentionDays) * 24 * time.Hour
	before := time.Now().Add(-retention)

	deleted, err := j.auditRepo.PurgeOlderThan(ctx, before)
	if err != nil {
		log.Printf("[AuditPurgeJob] 清理审计日志失败: %v", err)
		return
	}

	if deleted > 0 {
		log.Printf("[AuditPurgeJob] 已清理 %d 条过期审计日志（早于 %s）", deleted, before.Format("2006-01-02"))
	}
}
