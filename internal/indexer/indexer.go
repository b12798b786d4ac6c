package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/greenchain/ccrs/internal/config"
	"github.com/greenchain/ccrs/internal/ledger"
	"github.com/greenchain/ccrs/internal/logger"
	"github.com/greenchain/ccrs/internal/model"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Indexer 注册表合约事件索引器。
// 将合约日志回放进chain_event表，作为查询和审计的只追加事件流。
// RPC出错时按轮次指数退避，避免对故障节点持续施压。
type Indexer struct {
	client    *ledger.Client
	db        *gorm.DB
	batchSize int64

	mu              sync.Mutex
	retryCount      int           // 连续失败次数
	lastErrTime     time.Time     // 最近一次失败时间
	backoffDuration time.Duration // 当前退避时间
}

// New 创建事件索引器；未启用时返回nil
func New(client *ledger.Client, db *gorm.DB, cfg config.IndexerConfig) *Indexer {
	if !cfg.Enabled {
		return nil
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	return &Indexer{
		client:    client,
		db:        db,
		batchSize: batchSize,
	}
}

// RunOnce 执行一轮回放：从游标追到最新区块。
// 处于退避窗口内时直接跳过本轮。
func (ix *Indexer) RunOnce(ctx context.Context) error {
	if ix == nil {
		return nil
	}
	if ix.inBackoff() {
		logger.Debug("Indexer backing off, skipping this round")
		return nil
	}

	latest, err := ix.client.Eth().BlockNumber(ctx)
	if err != nil {
		ix.handleError(err)
		return fmt.Errorf("failed to get latest block: %w", err)
	}

	fromBlock := ix.cursor()
	toBlock := int64(latest)
	if fromBlock > toBlock {
		ix.resetBackoff()
		return nil
	}

	logger.Debug("Indexing blocks %d to %d", fromBlock, toBlock)

	for currentFrom := fromBlock; currentFrom <= toBlock; currentFrom += ix.batchSize {
		currentTo := currentFrom + ix.batchSize - 1
		if currentTo > toBlock {
			currentTo = toBlock
		}

		if err := ix.processBatch(ctx, currentFrom, currentTo); err != nil {
			ix.handleError(err)
			return fmt.Errorf("error indexing blocks %d-%d: %w", currentFrom, currentTo, err)
		}

		// 避免触发RPC限流
		time.Sleep(time.Millisecond * 200)
	}

	ix.resetBackoff()
	return nil
}

// inBackoff 判断当前是否仍在退避窗口内
func (ix *Indexer) inBackoff() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.retryCount > 0 && time.Since(ix.lastErrTime) < ix.backoffDuration
}

// handleError RPC出错后推进退避计划
func (ix *Indexer) handleError(err error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.retryCount++
	ix.lastErrTime = time.Now()

	// 指数退避
	if ix.retryCount > 5 {
		ix.backoffDuration = time.Minute * 5 // 最大退避时间5分钟
	} else {
		ix.backoffDuration = time.Duration(ix.retryCount) * time.Second * 10
	}

	logger.Error("Indexer encountered error (retry %d, backoff %s): %v", ix.retryCount, ix.backoffDuration, err)
}

// resetBackoff 一轮成功后清除退避状态
func (ix *Indexer) resetBackoff() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.retryCount = 0
	ix.backoffDuration = 0
}

// cursor 确定回放起点：已索引的最大区块号之后，至少从合约部署区块开始
func (ix *Indexer) cursor() int64 {
	deployBlock := ix.client.DeployBlock()

	var maxIndexed int64
	err := ix.db.Model(&model.ChainEvent{}).
		Select("COALESCE(MAX(block_num), 0)").
		Scan(&maxIndexed).Error
	if err != nil {
		logger.Error("Failed to get max indexed block: %v", err)
		return deployBlock
	}

	if maxIndexed >= deployBlock {
		// 同一区块可能有未持久化的尾部日志，重放一次由唯一索引去重
		return maxIndexed
	}
	return deployBlock
}

// processBatch 抓取一批区块的合约日志，用临时协程池并发持久化。
// (tx_hash, log_index) 唯一索引去重，日志之间没有顺序依赖。
func (ix *Indexer) processBatch(ctx context.Context, fromBlock, toBlock int64) error {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: []common.Address{ix.client.Address()},
	}

	logs, err := ix.client.Eth().FilterLogs(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to filter logs: %w", err)
	}
	if len(logs) == 0 {
		return nil
	}

	logger.Debug("Found %d logs in blocks %d-%d", len(logs), fromBlock, toBlock)

	poolSize := len(logs)
	if poolSize > 16 {
		poolSize = 16
	}
	tempPool, err := ants.NewPool(poolSize)
	if err != nil {
		return fmt.Errorf("failed to create temporary pool for %d logs: %w", len(logs), err)
	}
	defer tempPool.Release()

	var wg sync.WaitGroup
	for _, lg := range logs {
		lg := lg
		wg.Add(1)
		err := tempPool.Submit(func() {
			defer wg.Done()
			if err := ix.storeLog(lg); err != nil {
				logger.Error("Failed to store event at block %d: %v", lg.BlockNumber, err)
			}
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit task to pool: %v", err)
		}
	}
	wg.Wait()

	return nil
}

// storeLog 解析单条日志并写入事件表，(tx_hash, log_index) 唯一索引负责去重
func (ix *Indexer) storeLog(lg types.Log) error {
	eventData, err := ix.client.ParseEvent(lg)
	if err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}

	dataJSON, err := json.Marshal(eventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	eventName, _ := eventData["eventName"].(string)
	projectId, _ := eventData["projectId"].(string)

	event := &model.ChainEvent{
		ContractAddress: ix.client.Address().Hex(),
		BlockNum:        int64(lg.BlockNumber),
		TxHash:          lg.TxHash.Hex(),
		LogIndex:        int64(lg.Index),
		EventName:       eventName,
		ProjectId:       projectId,
		Data:            string(dataJSON),
	}

	return ix.db.Clauses(clause.OnConflict{DoNothing: true}).Create(event).Error
}

// ListEvents 查询已索引的事件，projectId为空时返回全部
func (ix *Indexer) ListEvents(projectId string, page, pageSize int) ([]model.ChainEvent, int64, error) {
	if ix == nil {
		return nil, 0, fmt.Errorf("event indexer not enabled")
	}
	return ListEvents(ix.db, projectId, page, pageSize)
}

// ListEvents 从事件表分页查询
func ListEvents(db *gorm.DB, projectId string, page, pageSize int) ([]model.ChainEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := db.Model(&model.ChainEvent{})
	if projectId != "" {
		query = query.Where("project_id = ?", projectId)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	var events []model.ChainEvent
	err := query.Order("block_num DESC, log_index DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&events).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}

	return events, total, nil
}
