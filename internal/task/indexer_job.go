package task

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/greenchain/ccrs/internal/config"
	"github.com/greenchain/ccrs/internal/indexer"
	"github.com/greenchain/ccrs/internal/logger"
)

// IndexerJob 链上事件回放任务
type IndexerJob struct {
	indexer *indexer.Indexer
	config  *config.Config
}

// NewIndexerJob 创建事件回放任务
func NewIndexerJob(ix *indexer.Indexer, cfg *config.Config) *IndexerJob {
	return &IndexerJob{
		indexer: ix,
		config:  cfg,
	}
}

// GetName 获取任务名称
func (j *IndexerJob) GetName() string {
	return "chain_event_indexer"
}

// GetSchedule 获取调度配置
func (j *IndexerJob) GetSchedule() gocron.JobDefinition {
	interval := time.Duration(j.config.Indexer.Interval) * time.Second
	if interval <= 0 {
		interval = time.Second * 60
	}
	return gocron.DurationJob(interval)
}

// Execute 执行一轮事件回放
func (j *IndexerJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*5)
	defer cancel()

	if err := j.indexer.RunOnce(ctx); err != nil {
		logger.Error("Event indexing failed: %v", err)
	}
}
