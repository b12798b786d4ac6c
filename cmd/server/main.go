package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/greenchain/ccrs/internal/cache"
	"github.com/greenchain/ccrs/internal/config"
	"github.com/greenchain/ccrs/internal/database"
	"github.com/greenchain/ccrs/internal/evidence"
	"github.com/greenchain/ccrs/internal/identity"
	"github.com/greenchain/ccrs/internal/indexer"
	"github.com/greenchain/ccrs/internal/ledger"
	"github.com/greenchain/ccrs/internal/logger"
	"github.com/greenchain/ccrs/internal/registry"
	"github.com/greenchain/ccrs/internal/router"
	"github.com/greenchain/ccrs/internal/task"
	"github.com/greenchain/ccrs/internal/workflow"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	initLogger(cfg)
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化链上客户端
	ledgerClient, err := ledger.New(cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to initialize ledger client: %v", err)
	}
	defer ledgerClient.Close()

	statusCache := cache.New(cfg.Redis)
	defer statusCache.Close()

	// 核心组件。后台对账也会改项目状态，缓存失效挂在引擎上而不是handler上
	store := registry.NewGormStore(db)
	engine := registry.NewEngine(store, ledgerClient, registry.Options{
		ConfirmWait:  time.Duration(cfg.Reconcile.ConfirmWait) * time.Second,
		PollInterval: time.Duration(cfg.Reconcile.PollInterval) * time.Second,
		GracePeriod:  time.Duration(cfg.Reconcile.GracePeriod) * time.Second,
		OnProjectChanged: func(projectID string) {
			statusCache.Invalidate(context.Background(), projectID)
		},
	})

	identitySvc := identity.NewService(db, cfg.Auth)

	pinner := evidence.NewPinner(cfg.Ipfs)
	evidenceSvc := evidence.NewService(db, pinner)

	decisions := workflow.NewGormDecisionStore(db)
	wf, err := workflow.New(store, engine, identitySvc, decisions, cfg.Reconcile.DispatchPool)
	if err != nil {
		logger.Fatal("Failed to initialize workflow: %v", err)
	}
	defer wf.Close()

	// 事件索引器（可选）
	ix := indexer.New(ledgerClient, db, cfg.Indexer)

	// 后台任务：在途操作对账 + 链上事件回放
	taskManager, err := task.NewManager(engine, ix, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize task manager: %v", err)
	}
	taskManager.Start()
	defer taskManager.Stop()

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(db, wf, store, identitySvc, evidenceSvc, statusCache)

	// 启动服务器
	logger.Info("Server starting on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

// initLogger 按配置初始化全局日志
func initLogger(cfg *config.Config) {
	level := logger.ParseLogLevel(cfg.Log.GetLevel())

	var (
		l   *logger.Logger
		err error
	)
	if cfg.Log.GetOutput() == "file" {
		l, err = logger.NewWithFileRotation(level, cfg.Log.GetFile())
	} else {
		l, err = logger.New(level)
	}
	if err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	logger.SetDefaultLogger(l)
}
