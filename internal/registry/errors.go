package registry

import (
	"errors"
	"fmt"

	"github.com/greenchain/ccrs/internal/model"
)

// 错误分类，调用方依据类型决定重试策略：
// ErrVersionConflict 重新读取后由调用方决定是否重试，引擎自身绝不静默重试；
// ErrAlreadyInFlight 等待或轮询；ErrIndeterminate 交给对账扫描收敛。
var (
	ErrProjectNotFound = errors.New("项目不存在")
	ErrAlreadyInFlight = errors.New("已有链上操作进行中")
	ErrVersionConflict = errors.New("版本冲突，请重新读取后重试")
	ErrIndeterminate   = errors.New("链上调用结果未知，等待对账确认")
)

// PreconditionError 前置条件不满足
type PreconditionError struct {
	Condition string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("前置条件不满足: %s", e.Condition)
}

// StateTransitionError 非法状态流转
type StateTransitionError struct {
	Current   model.LifecycleState
	Requested model.LifecycleState
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("非法状态流转: %s -> %s", e.Current, e.Requested)
}

// LedgerRejectedError 链上明确拒绝，需要人工通过重试接口再次发起
type LedgerRejectedError struct {
	Reason string
}

func (e *LedgerRejectedError) Error() string {
	return fmt.Sprintf("链上拒绝: %s", e.Reason)
}

// IsPrecondition 判断是否为前置条件错误
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// IsStateTransition 判断是否为状态流转错误
func IsStateTransition(err error) bool {
	var se *StateTransitionError
	return errors.As(err, &se)
}

// IsLedgerRejected 判断是否为链上拒绝错误
func IsLedgerRejected(err error) bool {
	var le *LedgerRejectedError
	return errors.As(err, &le)
}
