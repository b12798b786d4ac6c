package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/greenchain/ccrs/internal/logger"
	"github.com/greenchain/ccrs/internal/model"
	"github.com/greenchain/ccrs/internal/registry"
	"github.com/panjf2000/ants/v2"
)

// 审批操作所需的能力
const (
	CapApproveProject = "project:approve"
	CapRejectProject  = "project:reject"
	CapRetireCredits  = "project:retire"
	CapRetryOperation = "project:retry"
)

// ErrForbidden 调用者不具备执行该操作的能力
var ErrForbidden = errors.New("没有权限执行该操作")

// CapabilityChecker 调用者能力校验接口
type CapabilityChecker interface {
	HasCapability(ctx context.Context, callerID string, capability string) bool
}

// DecisionStore 审核决定存储接口（只追加）
type DecisionStore interface {
	Save(ctx context.Context, d *model.ApprovalDecision) error
}

// Workflow 审批工作流。
// 负责校验谁可以把项目推进到哪个状态，以及状态流转的先后顺序；
// 链上交互全部转发给对账引擎，自身从不直接访问链。
type Workflow struct {
	store     registry.Store
	engine    *registry.Engine
	checker   CapabilityChecker
	decisions DecisionStore
	pool      *ants.Pool
}

// New 创建审批工作流
func New(store registry.Store, engine *registry.Engine, checker CapabilityChecker, decisions DecisionStore, poolSize int) (*Workflow, error) {
	if poolSize <= 0 {
		poolSize = 8
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch pool: %w", err)
	}

	return &Workflow{
		store:     store,
		engine:    engine,
		checker:   checker,
		decisions: decisions,
		pool:      pool,
	}, nil
}

// Close 释放工作流资源
func (w *Workflow) Close() {
	w.pool.Release()
}

// SubmitRequest 项目提交请求
type SubmitRequest struct {
	Name           string
	Description    string
	Location       string
	Methodology    string
	CreditsClaimed int64
	OwnerAddress   string
	SubmitterId    int64
}

// Decision 审核决定
type Decision struct {
	Comments        string
	MeasuredCredits int64 // 核定信用数量，0表示维持申报值
}

// Submit 提交项目，创建仅存在于链下的SUBMITTED聚合
func (w *Workflow) Submit(ctx context.Context, req SubmitRequest) (*model.Project, error) {
	if req.Name == "" {
		return nil, &registry.PreconditionError{Condition: "项目名称不能为空"}
	}
	if req.CreditsClaimed <= 0 {
		return nil, &registry.PreconditionError{Condition: "申报信用数量必须大于0"}
	}
	if !common.IsHexAddress(req.OwnerAddress) {
		return nil, &registry.PreconditionError{Condition: "所有者链上地址缺失或格式错误"}
	}

	p := &model.Project{
		ProjectId:      "prj-" + uuid.NewString(),
		Name:           req.Name,
		Description:    req.Description,
		Location:       req.Location,
		Methodology:    req.Methodology,
		CreditsClaimed: req.CreditsClaimed,
		OwnerAddress:   req.OwnerAddress,
		SubmitterId:    req.SubmitterId,
		State:          model.StateSubmitted,
		Version:        1,
	}

	if err := w.store.Create(ctx, p); err != nil {
		return nil, err
	}

	logger.Info("Project %s submitted with %d credits claimed", p.ProjectId, p.CreditsClaimed)
	return p, nil
}

// Approve 审核通过项目。
// 状态流转和审核记录落库即返回，链上注册由协程池异步发起，
// 结果通过对账引擎收敛到项目状态上。
func (w *Workflow) Approve(ctx context.Context, projectID, approverID string, decision Decision) (*model.Project, error) {
	if !w.checker.HasCapability(ctx, approverID, CapApproveProject) {
		return nil, ErrForbidden
	}

	p, err := w.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.State != model.StateSubmitted {
		return nil, &registry.StateTransitionError{Current: p.State, Requested: model.StateApproved}
	}
	if decision.MeasuredCredits < 0 || decision.MeasuredCredits > p.CreditsClaimed {
		return nil, &registry.PreconditionError{Condition: "核定数量不能为负或超出申报值"}
	}

	// 核定数量可在进入APPROVED前下调申报值，之后不可再变
	if decision.MeasuredCredits > 0 {
		p.CreditsClaimed = decision.MeasuredCredits
	}
	p.State = model.StateApproved
	if err := w.store.CompareAndSwap(ctx, p.Version, p); err != nil {
		return nil, err
	}

	// 审核记录一经创建不可修改，且只在状态流转落库后追加，
	// 并发审核的输家不会留下没有对应流转的记录
	rec := &model.ApprovalDecision{
		ProjectId:       p.ProjectId,
		ApproverId:      approverID,
		Approved:        true,
		Comments:        decision.Comments,
		MeasuredCredits: decision.MeasuredCredits,
	}
	if err := w.decisions.Save(ctx, rec); err != nil {
		// 审计副本，主状态已落库，不回滚
		logger.Error("Failed to append approval record for project %s: %v", p.ProjectId, err)
	}

	w.dispatchRegister(p.ProjectId)

	logger.Info("Project %s approved by %s", p.ProjectId, approverID)
	return p, nil
}

// Reject 驳回项目（终态，无链上交互）
func (w *Workflow) Reject(ctx context.Context, projectID, approverID, reason string) (*model.Project, error) {
	if !w.checker.HasCapability(ctx, approverID, CapRejectProject) {
		return nil, ErrForbidden
	}
	if reason == "" {
		return nil, &registry.PreconditionError{Condition: "驳回原因不能为空"}
	}

	p, err := w.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.State != model.StateSubmitted {
		return nil, &registry.StateTransitionError{Current: p.State, Requested: model.StateRejected}
	}

	p.State = model.StateRejected
	p.FailureReason = reason
	if err := w.store.CompareAndSwap(ctx, p.Version, p); err != nil {
		return nil, err
	}

	rec := &model.ApprovalDecision{
		ProjectId:  p.ProjectId,
		ApproverId: approverID,
		Approved:   false,
		Comments:   reason,
	}
	if err := w.decisions.Save(ctx, rec); err != nil {
		logger.Error("Failed to append rejection record for project %s: %v", p.ProjectId, err)
	}

	logger.Info("Project %s rejected by %s: %s", p.ProjectId, approverID, reason)
	return p, nil
}

// Retire 注销碳信用（仅REGISTERED状态可发起，前置校验由引擎完成）
func (w *Workflow) Retire(ctx context.Context, projectID, callerID string, amount int64, reason string) (*model.Project, error) {
	if !w.checker.HasCapability(ctx, callerID, CapRetireCredits) {
		return nil, ErrForbidden
	}
	return w.engine.RetireCredits(ctx, projectID, amount, reason)
}

// RetryRegistration 从REGISTRATION_FAILED重新发起注册。
// 先回到APPROVED再调用引擎，引擎用同一个幂等键推导，
// 已在链上成功的前次尝试会被识别为已完成而不会重复执行。
func (w *Workflow) RetryRegistration(ctx context.Context, projectID, callerID string) (*model.Project, error) {
	if !w.checker.HasCapability(ctx, callerID, CapRetryOperation) {
		return nil, ErrForbidden
	}

	p, err := w.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.State != model.StateRegistrationFailed {
		return nil, &registry.StateTransitionError{Current: p.State, Requested: model.StateApproved}
	}

	p.State = model.StateApproved
	p.FailureReason = ""
	if err := w.store.CompareAndSwap(ctx, p.Version, p); err != nil {
		return nil, err
	}

	return w.engine.RegisterOnLedger(ctx, projectID)
}

// RetryRetirement 从RETIREMENT_FAILED重新发起注销
func (w *Workflow) RetryRetirement(ctx context.Context, projectID, callerID string, amount int64, reason string) (*model.Project, error) {
	if !w.checker.HasCapability(ctx, callerID, CapRetryOperation) {
		return nil, ErrForbidden
	}

	p, err := w.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.State != model.StateRetirementFailed {
		return nil, &registry.StateTransitionError{Current: p.State, Requested: model.StateRegistered}
	}

	p.State = model.StateRegistered
	p.FailureReason = ""
	if err := w.store.CompareAndSwap(ctx, p.Version, p); err != nil {
		return nil, err
	}

	return w.engine.RetireCredits(ctx, projectID, amount, reason)
}

// GetProject 获取项目当前状态
func (w *Workflow) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	return w.store.Load(ctx, projectID)
}

// dispatchRegister 异步发起链上注册
func (w *Workflow) dispatchRegister(projectID string) {
	err := w.pool.Submit(func() {
		_, err := w.engine.RegisterOnLedger(context.Background(), projectID)
		switch {
		case err == nil:
			logger.Info("Project %s registered on ledger", projectID)
		case errors.Is(err, registry.ErrIndeterminate):
			// 结果未知是正常情形，对账扫描会收敛
			logger.Warn("Registration for project %s indeterminate, awaiting reconcile", projectID)
		default:
			logger.Error("Registration for project %s failed: %v", projectID, err)
		}
	})
	if err != nil {
		// 提交失败时在途标记尚未写入，对账不会丢失它；操作员可通过重试接口再次发起
		logger.Error("Failed to submit register dispatch for project %s: %v", projectID, err)
	}
}
