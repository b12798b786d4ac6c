package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/greenchain/ccrs/internal/model"
	"gorm.io/gorm"
)

// GormStore 基于gorm的链下存储实现
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建链下存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create 创建项目
func (s *GormStore) Create(ctx context.Context, p *model.Project) error {
	if p.Version == 0 {
		p.Version = 1
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("创建项目失败: %w", err)
	}
	return nil
}

// Load 按项目ID加载项目
func (s *GormStore) Load(ctx context.Context, projectID string) (*model.Project, error) {
	var p model.Project
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("加载项目失败: %w", err)
	}
	return &p, nil
}

// CompareAndSwap 乐观并发写：仅当版本匹配时更新，并将版本加一
func (s *GormStore) CompareAndSwap(ctx context.Context, expectedVersion int64, p *model.Project) error {
	updates := map[string]interface{}{
		"state":                p.State,
		"credits_claimed":      p.CreditsClaimed,
		"credits_retired":      p.CreditsRetired,
		"owner_address":        p.OwnerAddress,
		"token_id":             p.TokenId,
		"last_tx_hash":         p.LastTxHash,
		"last_confirmed_block": p.LastConfirmedBlock,
		"pending_kind":         p.PendingKind,
		"pending_key":          p.PendingKey,
		"pending_amount":       p.PendingAmount,
		"pending_reason":       p.PendingReason,
		"pending_tx_hash":      p.PendingTxHash,
		"pending_requested_at": p.PendingRequestedAt,
		"failure_reason":       p.FailureReason,
		"version":              expectedVersion + 1,
		"updated_at":           time.Now(),
	}

	res := s.db.WithContext(ctx).Model(&model.Project{}).
		Where("project_id = ? AND version = ?", p.ProjectId, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("更新项目失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}

	p.Version = expectedVersion + 1
	return nil
}

// PendingOlderThan 列出在途标记早于cutoff的项目
func (s *GormStore) PendingOlderThan(ctx context.Context, cutoff time.Time) ([]model.Project, error) {
	var projects []model.Project
	err := s.db.WithContext(ctx).
		Where("pending_kind <> '' AND pending_requested_at <= ?", cutoff).
		Order("pending_requested_at ASC").
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("获取在途项目失败: %w", err)
	}
	return projects, nil
}

// AppendRetirement 追加注销记录
func (s *GormStore) AppendRetirement(ctx context.Context, rec *model.RetirementRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("创建注销记录失败: %w", err)
	}
	return nil
}

// ListProjects 分页查询项目列表
func (s *GormStore) ListProjects(ctx context.Context, state string, submitterId int64, page, pageSize int) ([]model.Project, int64, error) {
	var projects []model.Project
	var total int64

	query := s.db.WithContext(ctx).Model(&model.Project{})
	if state != "" {
		query = query.Where("state = ?", state)
	}
	if submitterId > 0 {
		query = query.Where("submitter_id = ?", submitterId)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取项目总数失败: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, 0, fmt.Errorf("获取项目列表失败: %w", err)
	}

	return projects, total, nil
}

// ListRetirements 查询项目的注销记录
func (s *GormStore) ListRetirements(ctx context.Context, projectID string) ([]model.RetirementRecord, error) {
	var records []model.RetirementRecord
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("获取注销记录失败: %w", err)
	}
	return records, nil
}

// Stats 获取注册表统计信息
func (s *GormStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	db := s.db.WithContext(ctx)

	var totalProjects int64
	db.Model(&model.Project{}).Count(&totalProjects)

	// 统计各状态项目数量
	counts := make(map[string]int64)
	states := []model.LifecycleState{
		model.StateSubmitted,
		model.StateApproved,
		model.StateRegistered,
		model.StateRegistrationFailed,
		model.StateRetired,
		model.StateRetirementFailed,
		model.StateRejected,
	}
	for _, st := range states {
		var n int64
		db.Model(&model.Project{}).Where("state = ?", st).Count(&n)
		counts[string(st)] = n
	}

	var totalClaimed int64
	db.Model(&model.Project{}).Select("COALESCE(SUM(credits_claimed), 0)").Scan(&totalClaimed)

	var totalRetired int64
	db.Model(&model.Project{}).Select("COALESCE(SUM(credits_retired), 0)").Scan(&totalRetired)

	var pendingOps int64
	db.Model(&model.Project{}).Where("pending_kind <> ''").Count(&pendingOps)

	return map[string]interface{}{
		"totalProjects":     totalProjects,
		"byState":           counts,
		"totalClaimed":      totalClaimed,
		"totalRetired":      totalRetired,
		"pendingOperations": pendingOps,
	}, nil
}
