package task

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/greenchain/ccrs/internal/config"
	"github.com/greenchain/ccrs/internal/logger"
	"github.com/greenchain/ccrs/internal/registry"
)

// ReconcileJob 未决链上操作对账任务。
// 定期把超过宽限期仍未落定的操作拿去和链上真实结果比对，
// 防止进程崩溃或超时后项目永远停在中间状态。
type ReconcileJob struct {
	engine *registry.Engine
	config *config.Config
}

// NewReconcileJob 创建对账任务
func NewReconcileJob(engine *registry.Engine, cfg *config.Config) *ReconcileJob {
	return &ReconcileJob{
		engine: engine,
		config: cfg,
	}
}

// GetName 获取任务名称
func (j *ReconcileJob) GetName() string {
	return "pending_operation_reconciler"
}

// GetSchedule 获取调度配置
func (j *ReconcileJob) GetSchedule() gocron.JobDefinition {
	interval := time.Duration(j.config.Reconcile.Interval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return gocron.DurationJob(interval)
}

// Execute 执行一轮对账
func (j *ReconcileJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*5)
	defer cancel()

	resolved, err := j.engine.ReconcileIndeterminate(ctx)
	if err != nil {
		logger.Error("Reconcile sweep failed: %v", err)
		return
	}
	if resolved > 0 {
		logger.Info("Reconcile sweep resolved %d pending operations", resolved)
	}
}
