package model

import (
	"time"
)

// Evidence 项目佐证材料（一经创建不可修改）
type Evidence struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectId   string `json:"project_id" gorm:"index;not null"`
	FileName    string `json:"file_name" gorm:"not null"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`

	// 内容哈希在提交时计算一次，之后永不重算
	ContentHash string `json:"content_hash" gorm:"not null;index"`

	// IPFS CID，钉存成功时填写，失败时为空
	Cid string `json:"cid"`

	SubmittedBy int64 `json:"submitted_by"`
}

// TableName 自定义表名
func (Evidence) TableName() string {
	return "evidence"
}
