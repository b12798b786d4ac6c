package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/greenchain/ccrs/internal/logger"
	"github.com/greenchain/ccrs/internal/model"
)

// Engine 双账本对账引擎。
// 唯一职责：把链下已审核的决定推送上链，并把结果持久化记录下来。
// 所有链上调用先写在途标记再广播（写前日志），结果未知时由
// ReconcileIndeterminate 按幂等键查询链上真实结果后收敛，绝不盲目重发。
type Engine struct {
	store  Store
	ledger LedgerClient

	confirmWait  time.Duration // 发起调用后等待确认的上限
	pollInterval time.Duration // 等待确认期间的轮询间隔
	gracePeriod  time.Duration // 在途标记的宽限期，超过后才会被扫描处理

	onChanged func(projectID string) // 每次成功落库后的变更通知（读缓存失效用）
}

// Options 引擎配置
type Options struct {
	ConfirmWait  time.Duration
	PollInterval time.Duration
	GracePeriod  time.Duration
	// OnProjectChanged 项目状态每次成功落库后回调，可为nil
	OnProjectChanged func(projectID string)
}

// NewEngine 创建对账引擎
func NewEngine(store Store, ledger LedgerClient, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second * 3
	}
	return &Engine{
		store:        store,
		ledger:       ledger,
		confirmWait:  opts.ConfirmWait,
		pollInterval: opts.PollInterval,
		gracePeriod:  opts.GracePeriod,
		onChanged:    opts.OnProjectChanged,
	}
}

// changed 通知项目状态已变更
func (e *Engine) changed(projectID string) {
	if e.onChanged != nil {
		e.onChanged(projectID)
	}
}

// RegisterOnLedger 把已审核通过的项目注册上链。
// 项目已注册且无在途操作时幂等返回当前结果；存在同键在途操作时
// 查询链上结果而不是重新广播。
func (e *Engine) RegisterOnLedger(ctx context.Context, projectID string) (*model.Project, error) {
	p, err := e.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	// 已注册且无在途操作：幂等返回
	if p.State == model.StateRegistered && !p.HasPending() {
		return p, nil
	}

	if p.HasPending() {
		if p.PendingKind == model.OpRegister {
			// 同键重试：查询链上结果，绝不重新广播
			return e.resolvePending(ctx, p)
		}
		return nil, ErrAlreadyInFlight
	}

	if p.State != model.StateApproved {
		return nil, &StateTransitionError{Current: p.State, Requested: model.StateRegistered}
	}
	if !common.IsHexAddress(p.OwnerAddress) {
		return nil, &PreconditionError{Condition: "所有者链上地址缺失或格式错误"}
	}
	if p.CreditsClaimed <= 0 {
		return nil, &PreconditionError{Condition: "申报信用数量必须大于0"}
	}

	// 写前日志：先持久化在途标记，再发起链上调用
	key := RegisterKey(p.ProjectId)
	expected := p.Version
	p.SetPending(model.OpRegister, key, p.CreditsClaimed, "")
	if err := e.store.CompareAndSwap(ctx, expected, p); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, e.classifyWriteConflict(ctx, p.ProjectId, model.OpRegister, 0)
		}
		return nil, err
	}
	e.changed(p.ProjectId)

	op := Operation{
		Kind:      model.OpRegister,
		ProjectID: p.ProjectId,
		Owner:     p.OwnerAddress,
		Amount:    p.CreditsClaimed,
	}
	return e.dispatch(ctx, p, op, key)
}

// RetireCredits 注销项目的碳信用。
// 并发的第二个请求在在途标记存在时直接返回 ErrAlreadyInFlight，不静默排队。
func (e *Engine) RetireCredits(ctx context.Context, projectID string, amount int64, reason string) (*model.Project, error) {
	p, err := e.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if p.HasPending() {
		return nil, ErrAlreadyInFlight
	}
	if p.State != model.StateRegistered {
		return nil, &PreconditionError{Condition: fmt.Sprintf("项目状态 %s 不允许注销信用", p.State)}
	}
	if reason == "" {
		return nil, &PreconditionError{Condition: "注销原因不能为空"}
	}
	if amount <= 0 {
		return nil, &PreconditionError{Condition: "注销数量必须大于0"}
	}
	if amount > p.CreditsAvailable() {
		return nil, &PreconditionError{Condition: fmt.Sprintf("注销数量 %d 超出剩余额度 %d", amount, p.CreditsAvailable())}
	}

	// 写前日志：先持久化在途标记，再发起链上调用
	key := RetireKey(p.ProjectId, amount, p.CreditsRetired)
	expected := p.Version
	p.SetPending(model.OpRetire, key, amount, reason)
	if err := e.store.CompareAndSwap(ctx, expected, p); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, e.classifyWriteConflict(ctx, p.ProjectId, model.OpRetire, amount)
		}
		return nil, err
	}
	e.changed(p.ProjectId)

	op := Operation{
		Kind:      model.OpRetire,
		ProjectID: p.ProjectId,
		Owner:     p.OwnerAddress,
		TokenId:   p.TokenId,
		Amount:    amount,
		Reason:    reason,
	}
	return e.dispatch(ctx, p, op, key)
}

// ReconcileIndeterminate 对账扫描：对所有超过宽限期的在途操作，
// 按持久化的幂等键查询链上真实结果并应用相应的状态流转。
// 这是跨进程重启收敛两个账本的唯一机制，由单例定时任务驱动。
func (e *Engine) ReconcileIndeterminate(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-e.gracePeriod)
	projects, err := e.store.PendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("获取在途项目失败: %w", err)
	}

	resolved := 0
	for i := range projects {
		p := &projects[i]

		outcome, err := e.ledger.QueryOutcome(ctx, p.PendingKey)
		if err != nil {
			logger.Error("Reconcile: failed to query outcome for project %s (key %s): %v",
				p.ProjectId, p.PendingKey, err)
			continue
		}

		kind := p.PendingKind
		switch outcome.Status {
		case OutcomeConfirmed:
			if _, err := e.applySuccess(ctx, p, outcome); err != nil {
				logger.Error("Reconcile: failed to apply confirmed outcome for project %s: %v", p.ProjectId, err)
				continue
			}
			logger.Info("Reconcile: project %s converged to confirmed %s", p.ProjectId, kind)
			resolved++
		case OutcomeRejected:
			if _, err := e.applyFailure(ctx, p, outcome.Reason); err != nil {
				logger.Error("Reconcile: failed to apply rejected outcome for project %s: %v", p.ProjectId, err)
				continue
			}
			logger.Info("Reconcile: project %s converged to rejected %s: %s", p.ProjectId, kind, outcome.Reason)
			resolved++
		default:
			// 事件过滤查不到结果：要么广播从未发生，要么交易revert（revert不产生事件）。
			// 两种情况都不会自己好转，必须主动恢复。
			done, rerr := e.recoverStalled(ctx, p)
			if rerr != nil {
				logger.Error("Reconcile: failed to recover stalled %s for project %s: %v", kind, p.ProjectId, rerr)
				continue
			}
			if done {
				logger.Info("Reconcile: project %s stalled %s resolved", p.ProjectId, kind)
				resolved++
			}
		}
	}

	return resolved, nil
}

// recoverStalled 处理超过宽限期且事件过滤查不到结果的在途操作。
// 无交易哈希说明广播可能从未到达链上，按原幂等键重新广播（合约按键去重，
// 不会产生第二次状态变更）；有交易哈希则查回执：执行失败即确定性拒绝。
// 返回是否已就地收敛。
func (e *Engine) recoverStalled(ctx context.Context, p *model.Project) (bool, error) {
	if p.PendingTxHash == "" {
		return e.redispatch(ctx, p)
	}

	status, err := e.ledger.TxReceiptStatus(ctx, p.PendingTxHash)
	if err != nil {
		return false, fmt.Errorf("查询交易回执失败: %w", err)
	}

	switch status {
	case ReceiptFailed:
		if _, err := e.applyFailure(ctx, p, "交易执行失败"); err != nil {
			return false, err
		}
		return true, nil
	case ReceiptNone:
		// 交易已从内存池丢失，重新广播
		return e.redispatch(ctx, p)
	default:
		// 已打包未达确认深度，或确认事件即将可查，留待下次扫描
		return false, nil
	}
}

// redispatch 按持久化的在途标记重新广播同键调用
func (e *Engine) redispatch(ctx context.Context, p *model.Project) (bool, error) {
	op := Operation{
		Kind:      p.PendingKind,
		ProjectID: p.ProjectId,
		Owner:     p.OwnerAddress,
		TokenId:   p.TokenId,
		Amount:    p.PendingAmount,
		Reason:    p.PendingReason,
	}

	handle, err := e.ledger.Submit(ctx, op, p.PendingKey)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			if _, perr := e.applyFailure(ctx, p, rej.Reason); perr != nil {
				return false, perr
			}
			return true, nil
		}
		return false, err
	}

	p.PendingTxHash = handle.TxHash
	if err := e.store.CompareAndSwap(ctx, p.Version, p); err != nil {
		logger.Warn("Failed to record redispatched tx hash for project %s: %v", p.ProjectId, err)
		return false, nil
	}
	e.changed(p.ProjectId)
	return false, nil
}

// dispatch 广播链上调用并在请求生命周期内等待确认。
// 确定性拒绝立即落库为失败；其余情况保留在途标记返回 ErrIndeterminate。
func (e *Engine) dispatch(ctx context.Context, p *model.Project, op Operation, key string) (*model.Project, error) {
	// 同键操作可能在之前的尝试中已经确认（结果未被观察到），先查一次再广播
	if outcome, err := e.ledger.QueryOutcome(ctx, key); err == nil && outcome.Status == OutcomeConfirmed {
		return e.applySuccess(ctx, p, outcome)
	}

	handle, err := e.ledger.Submit(ctx, op, key)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			pp, perr := e.applyFailure(ctx, p, rej.Reason)
			if perr != nil {
				return nil, perr
			}
			return pp, &LedgerRejectedError{Reason: rej.Reason}
		}
		// 结果未知：在途标记保持原样，交给对账扫描
		logger.Warn("Dispatch for project %s (key %s) returned indeterminate result: %v", p.ProjectId, key, err)
		return nil, fmt.Errorf("%w: %v", ErrIndeterminate, err)
	}

	// 记录交易哈希便于审计和回执核对，写入失败不影响对账（对账只依赖幂等键）
	p.PendingTxHash = handle.TxHash
	if err := e.store.CompareAndSwap(ctx, p.Version, p); err != nil {
		logger.Warn("Failed to record pending tx hash for project %s: %v", p.ProjectId, err)
		fresh, lerr := e.store.Load(ctx, p.ProjectId)
		if lerr != nil {
			return nil, lerr
		}
		p = fresh
	} else {
		e.changed(p.ProjectId)
	}

	outcome := e.awaitOutcome(ctx, key)
	switch outcome.Status {
	case OutcomeConfirmed:
		return e.applySuccess(ctx, p, outcome)
	case OutcomeRejected:
		pp, perr := e.applyFailure(ctx, p, outcome.Reason)
		if perr != nil {
			return nil, perr
		}
		return pp, &LedgerRejectedError{Reason: outcome.Reason}
	default:
		return nil, ErrIndeterminate
	}
}

// resolvePending 对同键重试：查询链上结果并应用，链上仍无结果时返回 ErrAlreadyInFlight
func (e *Engine) resolvePending(ctx context.Context, p *model.Project) (*model.Project, error) {
	outcome, err := e.ledger.QueryOutcome(ctx, p.PendingKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndeterminate, err)
	}

	switch outcome.Status {
	case OutcomeConfirmed:
		return e.applySuccess(ctx, p, outcome)
	case OutcomeRejected:
		pp, perr := e.applyFailure(ctx, p, outcome.Reason)
		if perr != nil {
			return nil, perr
		}
		return pp, &LedgerRejectedError{Reason: outcome.Reason}
	default:
		return nil, ErrAlreadyInFlight
	}
}

// awaitOutcome 在confirmWait上限内轮询链上结果
func (e *Engine) awaitOutcome(ctx context.Context, key string) Outcome {
	deadline := time.Now().Add(e.confirmWait)
	for {
		outcome, err := e.ledger.QueryOutcome(ctx, key)
		if err == nil && outcome.Status != OutcomePending {
			return outcome
		}
		if err != nil {
			logger.Debug("Query outcome for key %s failed: %v", key, err)
		}

		if !time.Now().Before(deadline) {
			return Outcome{Status: OutcomePending}
		}
		select {
		case <-ctx.Done():
			// 客户端超时只是停止等待，链上调用无法撤销
			return Outcome{Status: OutcomePending}
		case <-time.After(e.pollInterval):
		}
	}
}

// applySuccess 应用链上确认成功后的状态流转
func (e *Engine) applySuccess(ctx context.Context, p *model.Project, outcome Outcome) (*model.Project, error) {
	if outcome.Ref == nil {
		return nil, fmt.Errorf("确认结果缺少链上引用")
	}

	kind := p.PendingKind
	amount := p.PendingAmount
	reason := p.PendingReason

	switch kind {
	case model.OpRegister:
		p.TokenId = outcome.Ref.TokenId
		p.State = model.StateRegistered
	case model.OpRetire:
		p.CreditsRetired += amount
		if p.CreditsRetired >= p.CreditsClaimed {
			p.State = model.StateRetired
		} else {
			p.State = model.StateRegistered
		}
	default:
		return nil, fmt.Errorf("未知的在途操作类型: %s", kind)
	}

	p.LastTxHash = outcome.Ref.TxHash
	p.LastConfirmedBlock = outcome.Ref.BlockNumber
	p.FailureReason = ""
	p.ClearPending()

	if err := e.store.CompareAndSwap(ctx, p.Version, p); err != nil {
		return nil, err
	}
	e.changed(p.ProjectId)

	if kind == model.OpRetire {
		rec := &model.RetirementRecord{
			ProjectId:    p.ProjectId,
			Amount:       amount,
			Reason:       reason,
			TxHash:       outcome.Ref.TxHash,
			BlockNum:     outcome.Ref.BlockNumber,
			TotalRetired: p.CreditsRetired,
		}
		if err := e.store.AppendRetirement(ctx, rec); err != nil {
			// 注销记录是审计副本，主状态已落库，不回滚
			logger.Error("Failed to append retirement record for project %s: %v", p.ProjectId, err)
		}
	}

	return p, nil
}

// applyFailure 应用链上确定性拒绝后的状态流转，信用余额保持不变
func (e *Engine) applyFailure(ctx context.Context, p *model.Project, reason string) (*model.Project, error) {
	switch p.PendingKind {
	case model.OpRegister:
		p.State = model.StateRegistrationFailed
	case model.OpRetire:
		p.State = model.StateRetirementFailed
	default:
		return nil, fmt.Errorf("未知的在途操作类型: %s", p.PendingKind)
	}

	p.FailureReason = reason
	p.ClearPending()

	if err := e.store.CompareAndSwap(ctx, p.Version, p); err != nil {
		return nil, err
	}
	e.changed(p.ProjectId)
	return p, nil
}

// classifyWriteConflict 把写前日志阶段的版本冲突翻译成对调用方更准确的错误：
// 并发请求已抢先设置在途标记时返回 ErrAlreadyInFlight，
// 前置条件已不再满足时返回对应的前置条件错误。
func (e *Engine) classifyWriteConflict(ctx context.Context, projectID string, kind model.OperationKind, amount int64) error {
	fresh, err := e.store.Load(ctx, projectID)
	if err != nil {
		return ErrVersionConflict
	}

	if fresh.HasPending() {
		return ErrAlreadyInFlight
	}

	switch kind {
	case model.OpRegister:
		if fresh.State != model.StateApproved {
			return &StateTransitionError{Current: fresh.State, Requested: model.StateRegistered}
		}
	case model.OpRetire:
		if fresh.State != model.StateRegistered {
			return &PreconditionError{Condition: fmt.Sprintf("项目状态 %s 不允许注销信用", fresh.State)}
		}
		if amount > fresh.CreditsAvailable() {
			return &PreconditionError{Condition: fmt.Sprintf("注销数量 %d 超出剩余额度 %d", amount, fresh.CreditsAvailable())}
		}
	}

	return ErrVersionConflict
}
