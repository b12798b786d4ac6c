package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/greenchain/ccrs/internal/logger"
	"github.com/greenchain/ccrs/internal/model"
	"github.com/greenchain/ccrs/internal/registry"
	"gorm.io/gorm"
)

// Service 佐证材料服务。
// 材料一经创建不可修改，内容哈希在提交时计算一次，之后永不重算。
type Service struct {
	db     *gorm.DB
	pinner *Pinner
}

// NewService 创建佐证材料服务
func NewService(db *gorm.DB, pinner *Pinner) *Service {
	return &Service{db: db, pinner: pinner}
}

// Add 提交佐证材料
func (s *Service) Add(ctx context.Context, projectID, fileName, contentType string, data []byte, submittedBy int64) (*model.Evidence, error) {
	if fileName == "" {
		return nil, errors.New("文件名不能为空")
	}
	if len(data) == 0 {
		return nil, errors.New("文件内容不能为空")
	}

	// 确认项目存在
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Project{}).Where("project_id = ?", projectID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("查询项目失败: %w", err)
	}
	if count == 0 {
		return nil, registry.ErrProjectNotFound
	}

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	// 钉存失败不阻塞提交，CID留空
	cid := ""
	if s.pinner != nil {
		pinned, err := s.pinner.Pin(ctx, fileName, data)
		if err != nil {
			logger.Warn("Failed to pin evidence %s for project %s: %v", fileName, projectID, err)
		} else {
			cid = pinned
		}
	}

	ev := &model.Evidence{
		ProjectId:   projectID,
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		ContentHash: contentHash,
		Cid:         cid,
		SubmittedBy: submittedBy,
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, fmt.Errorf("创建佐证材料失败: %w", err)
	}

	return ev, nil
}

// List 查询项目的佐证材料
func (s *Service) List(ctx context.Context, projectID string) ([]model.Evidence, error) {
	var records []model.Evidence
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("获取佐证材料失败: %w", err)
	}
	return records, nil
}
