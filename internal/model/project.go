package model

import (
	"time"
)

// Project 碳信用项目模型（聚合根）
type Project struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	ProjectId   string `json:"project_id" gorm:"uniqueIndex;not null"` // 外部项目ID，提交时分配，不可变
	Name        string `json:"name" gorm:"not null" binding:"required"`
	Description string `json:"description" gorm:"type:text"`
	Location    string `json:"location"`
	Methodology string `json:"methodology"` // 减排方法学（如红树林修复、林业碳汇）

	// 信用额度信息
	CreditsClaimed int64 `json:"credits_claimed" gorm:"not null"`  // 申报碳信用数量，APPROVED后不可变
	CreditsRetired int64 `json:"credits_retired" gorm:"default:0"` // 已注销数量，单调递增

	// 生命周期状态
	State LifecycleState `json:"state" gorm:"default:'submitted';index"`

	// 提交者信息
	OwnerAddress string `json:"owner_address"` // 链上账户地址，上链前必须设置
	SubmitterId  int64  `json:"submitter_id"`

	// 链上引用（仅在链上操作成功后填写，不得凭空构造）
	TokenId            string `json:"token_id"`
	LastTxHash         string `json:"last_tx_hash"`
	LastConfirmedBlock int64  `json:"last_confirmed_block"`

	// 在途操作标记（先持久化再发起链上调用）
	PendingKind        OperationKind `json:"pending_kind" gorm:"index"`
	PendingKey         string        `json:"pending_key"`
	PendingAmount      int64         `json:"pending_amount"`
	PendingReason      string        `json:"pending_reason"`
	PendingTxHash      string        `json:"pending_tx_hash"`
	PendingRequestedAt *time.Time    `json:"pending_requested_at"`

	// 最近一次失败原因
	FailureReason string `json:"failure_reason"`

	// 乐观并发版本号，每次持久化修改递增
	Version int64 `json:"version" gorm:"not null;default:1"`
}

// TableName 自定义表名
func (Project) TableName() string {
	return "project"
}

// LifecycleState 项目生命周期状态
type LifecycleState string

const (
	StateSubmitted          LifecycleState = "submitted"           // 已提交，仅存在于链下
	StateApproved           LifecycleState = "approved"            // 审核通过，待上链注册
	StateRegistered         LifecycleState = "registered"          // 已上链注册
	StateRegistrationFailed LifecycleState = "registration_failed" // 上链注册被拒绝
	StateRetired            LifecycleState = "retired"             // 信用已全部注销（终态）
	StateRetirementFailed   LifecycleState = "retirement_failed"   // 注销被拒绝
	StateRejected           LifecycleState = "rejected"            // 审核驳回（终态）
)

// OperationKind 链上操作类型
type OperationKind string

const (
	OpNone     OperationKind = ""
	OpRegister OperationKind = "register"
	OpRetire   OperationKind = "retire"
)

// HasPending 是否存在在途链上操作
func (p *Project) HasPending() bool {
	return p.PendingKind != OpNone
}

// HasLedgerRef 是否已有链上引用
func (p *Project) HasLedgerRef() bool {
	return p.TokenId != ""
}

// CreditsAvailable 剩余可注销的信用数量
func (p *Project) CreditsAvailable() int64 {
	return p.CreditsClaimed - p.CreditsRetired
}

// SetPending 设置在途操作标记
func (p *Project) SetPending(kind OperationKind, key string, amount int64, reason string) {
	now := time.Now()
	p.PendingKind = kind
	p.PendingKey = key
	p.PendingAmount = amount
	p.PendingReason = reason
	p.PendingTxHash = ""
	p.PendingRequestedAt = &now
}

// ClearPending 清除在途操作标记（仅在结果已确认后调用）
func (p *Project) ClearPending() {
	p.PendingKind = OpNone
	p.PendingKey = ""
	p.PendingAmount = 0
	p.PendingReason = ""
	p.PendingTxHash = ""
	p.PendingRequestedAt = nil
}
