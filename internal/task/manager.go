package task

import (
	"github.com/go-co-op/gocron/v2"
	"github.com/greenchain/ccrs/internal/config"
	"github.com/greenchain/ccrs/internal/indexer"
	"github.com/greenchain/ccrs/internal/logger"
	"github.com/greenchain/ccrs/internal/registry"
)

// Manager 后台任务管理器
type Manager struct {
	scheduler gocron.Scheduler
	engine    *registry.Engine
	indexer   *indexer.Indexer
	config    *config.Config
}

// NewManager 创建任务管理器
func NewManager(engine *registry.Engine, ix *indexer.Indexer, cfg *config.Config) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &Manager{
		scheduler: s,
		engine:    engine,
		indexer:   ix,
		config:    cfg,
	}, nil
}

// Start 注册所有任务并启动调度器
func (m *Manager) Start() {
	m.registerJob(NewReconcileJob(m.engine, m.config))

	if m.indexer != nil {
		m.registerJob(NewIndexerJob(m.indexer, m.config))
	}

	m.scheduler.Start()
	logger.Info("Task manager started")
}

// Job 后台任务
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

// registerJob 注册单个任务，同名任务不并发执行
func (m *Manager) registerJob(job Job) {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
	}
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
