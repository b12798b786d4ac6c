package model

import (
	"time"
)

// RetirementRecord 信用注销记录（审计用，只追加）
type RetirementRecord struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectId string `json:"project_id" gorm:"index;not null"`
	Amount    int64  `json:"amount" gorm:"not null"`
	Reason    string `json:"reason" gorm:"not null"`
	TxHash    string `json:"tx_hash"`
	BlockNum  int64  `json:"block_num"`

	// 注销后的累计值快照
	TotalRetired int64 `json:"total_retired"`
}

// TableName 自定义表名
func (RetirementRecord) TableName() string {
	return "retirement_record"
}
