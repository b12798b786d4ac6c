package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/greenchain/ccrs/internal/model"
)

// Operation 链上操作描述
type Operation struct {
	Kind      model.OperationKind
	ProjectID string
	Owner     string
	TokenId   string // 注销时必填
	Amount    int64
	Reason    string
}

// CallHandle 已广播调用的句柄
type CallHandle struct {
	TxHash string
}

// OutcomeStatus 链上操作结果状态
type OutcomeStatus string

const (
	OutcomePending   OutcomeStatus = "pending"
	OutcomeConfirmed OutcomeStatus = "confirmed"
	OutcomeRejected  OutcomeStatus = "rejected"
)

// LedgerRef 链上引用
type LedgerRef struct {
	TokenId     string
	TxHash      string
	BlockNumber int64
}

// Outcome 按幂等键查询到的链上结果
type Outcome struct {
	Status OutcomeStatus
	Ref    *LedgerRef
	Reason string
}

// ReceiptStatus 交易回执状态。
// revert不产生事件，事件过滤查不到的超龄在途操作只能靠回执判定生死。
type ReceiptStatus string

const (
	ReceiptNone      ReceiptStatus = "none"      // 链上查不到该交易
	ReceiptPending   ReceiptStatus = "pending"   // 已打包但未达确认深度
	ReceiptSucceeded ReceiptStatus = "succeeded" // 执行成功
	ReceiptFailed    ReceiptStatus = "failed"    // 执行失败（revert）
)

// PublicProjectView 项目的链上公开视图
type PublicProjectView struct {
	Exists         bool   `json:"exists"`
	Owner          string `json:"owner"`
	CreditsIssued  int64  `json:"credits_issued"`
	CreditsRetired int64  `json:"credits_retired"`
}

// RejectionError 链上确定性拒绝（合约revert、重复注册等）。
// 其它所有提交错误一律视为结果未知，不得当作失败处理。
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("ledger rejected: %s", e.Reason)
}

// LedgerClient 链上客户端能力接口
type LedgerClient interface {
	// Submit 按幂等键广播一次状态变更调用
	Submit(ctx context.Context, op Operation, idempotencyKey string) (CallHandle, error)
	// QueryOutcome 按幂等键查询链上真实结果
	QueryOutcome(ctx context.Context, idempotencyKey string) (Outcome, error)
	// TxReceiptStatus 按交易哈希查询回执状态（对账扫描判定revert用）
	TxReceiptStatus(ctx context.Context, txHash string) (ReceiptStatus, error)
	// ReadProjectState 读取项目的链上当前状态
	ReadProjectState(ctx context.Context, tokenId string) (PublicProjectView, error)
}

// Store 链下存储能力接口（乐观并发）
type Store interface {
	Create(ctx context.Context, p *model.Project) error
	Load(ctx context.Context, projectID string) (*model.Project, error)
	// CompareAndSwap 仅当当前版本等于expectedVersion时写入，并将版本加一；
	// 版本不匹配时返回 ErrVersionConflict
	CompareAndSwap(ctx context.Context, expectedVersion int64, p *model.Project) error
	// PendingOlderThan 列出在途标记早于cutoff的项目（对账扫描用）
	PendingOlderThan(ctx context.Context, cutoff time.Time) ([]model.Project, error)
	AppendRetirement(ctx context.Context, rec *model.RetirementRecord) error
}
