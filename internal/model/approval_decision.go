package model

import (
	"time"
)

// ApprovalDecision 审核决定记录（一经创建不可修改）
type ApprovalDecision struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectId  string `json:"project_id" gorm:"index;not null"`
	ApproverId string `json:"approver_id" gorm:"not null"`
	Approved   bool   `json:"approved"`
	Comments   string `json:"comments" gorm:"type:text"`

	// 审核员核定的信用数量（可低于申报值，0表示维持申报值）
	MeasuredCredits int64 `json:"measured_credits"`
}

// TableName 自定义表名
func (ApprovalDecision) TableName() string {
	return "approval_decision"
}
