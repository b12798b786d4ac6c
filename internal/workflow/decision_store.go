package workflow

import (
	"context"
	"fmt"

	"github.com/greenchain/ccrs/internal/model"
	"gorm.io/gorm"
)

// GormDecisionStore 基于gorm的审核决定存储
type GormDecisionStore struct {
	db *gorm.DB
}

// NewGormDecisionStore 创建审核决定存储
func NewGormDecisionStore(db *gorm.DB) *GormDecisionStore {
	return &GormDecisionStore{db: db}
}

// Save 追加审核决定记录
func (s *GormDecisionStore) Save(ctx context.Context, d *model.ApprovalDecision) error {
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("创建审核记录失败: %w", err)
	}
	return nil
}

// ListByProject 查询项目的审核记录
func (s *GormDecisionStore) ListByProject(ctx context.Context, projectID string) ([]model.ApprovalDecision, error) {
	var decisions []model.ApprovalDecision
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&decisions).Error
	if err != nil {
		return nil, fmt.Errorf("获取审核记录失败: %w", err)
	}
	return decisions, nil
}
