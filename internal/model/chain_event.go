package model

import (
	"time"
)

// ChainEvent 链上事件记录（合约日志回放，只追加）
type ChainEvent struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ContractAddress string `json:"contract_address"`
	BlockNum        int64  `json:"block_num" gorm:"index"`
	TxHash          string `json:"tx_hash" gorm:"uniqueIndex:idx_event_tx_log"`
	LogIndex        int64  `json:"log_index" gorm:"uniqueIndex:idx_event_tx_log"`
	EventName       string `json:"event_name" gorm:"index"`
	ProjectId       string `json:"project_id" gorm:"index"`

	// 解析后的事件参数（JSON）
	Data string `json:"data" gorm:"type:text"`
}

// TableName 自定义表名
func (ChainEvent) TableName() string {
	return "chain_event"
}
