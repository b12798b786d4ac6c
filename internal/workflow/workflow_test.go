package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/greenchain/ccrs/internal/model"
	"github.com/greenchain/ccrs/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore 内存版项目存储
type memStore struct {
	mu          sync.Mutex
	rows        map[string]model.Project
	retirements []model.RetirementRecord
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]model.Project)}
}

func (s *memStore) Create(ctx context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[p.ProjectId]; ok {
		return fmt.Errorf("duplicate project id %s", p.ProjectId)
	}
	s.rows[p.ProjectId] = *p
	return nil
}

func (s *memStore) Load(ctx context.Context, projectID string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[projectID]
	if !ok {
		return nil, registry.ErrProjectNotFound
	}
	cp := row
	return &cp, nil
}

func (s *memStore) CompareAndSwap(ctx context.Context, expectedVersion int64, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[p.ProjectId]
	if !ok || row.Version != expectedVersion {
		return registry.ErrVersionConflict
	}
	cp := *p
	cp.Version = expectedVersion + 1
	s.rows[p.ProjectId] = cp
	p.Version = cp.Version
	return nil
}

func (s *memStore) PendingOlderThan(ctx context.Context, cutoff time.Time) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Project
	for _, row := range s.rows {
		if row.PendingKind != model.OpNone && row.PendingRequestedAt != nil && !row.PendingRequestedAt.After(cutoff) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *memStore) AppendRetirement(ctx context.Context, rec *model.RetirementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retirements = append(s.retirements, *rec)
	return nil
}

// fakeLedger 广播即确认的链上客户端
type fakeLedger struct {
	mu        sync.Mutex
	outcomes  map[string]registry.Outcome
	submits   int
	nextToken int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{outcomes: make(map[string]registry.Outcome), nextToken: 100}
}

func (f *fakeLedger) Submit(ctx context.Context, op registry.Operation, idempotencyKey string) (registry.CallHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.nextToken++
	f.outcomes[idempotencyKey] = registry.Outcome{
		Status: registry.OutcomeConfirmed,
		Ref: &registry.LedgerRef{
			TokenId:     strconv.FormatInt(f.nextToken, 10),
			TxHash:      "0xbeef",
			BlockNumber: 7,
		},
	}
	return registry.CallHandle{TxHash: "0xbeef"}, nil
}

func (f *fakeLedger) QueryOutcome(ctx context.Context, idempotencyKey string) (registry.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.outcomes[idempotencyKey]; ok {
		return o, nil
	}
	return registry.Outcome{Status: registry.OutcomePending}, nil
}

func (f *fakeLedger) ReadProjectState(ctx context.Context, tokenId string) (registry.PublicProjectView, error) {
	return registry.PublicProjectView{}, nil
}

func (f *fakeLedger) TxReceiptStatus(ctx context.Context, txHash string) (registry.ReceiptStatus, error) {
	return registry.ReceiptNone, nil
}

// roleChecker 按调用者ID授予能力
type roleChecker struct {
	caps map[string][]string
}

func (c *roleChecker) HasCapability(ctx context.Context, callerID string, capability string) bool {
	for _, cap := range c.caps[callerID] {
		if cap == capability {
			return true
		}
	}
	return false
}

// memDecisions 内存版审核记录存储
type memDecisions struct {
	mu      sync.Mutex
	records []model.ApprovalDecision
}

func (s *memDecisions) Save(ctx context.Context, d *model.ApprovalDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *d)
	return nil
}

// conflictOnceStore 下一次CAS直接失败，模拟并发审核的赢家抢先落库
type conflictOnceStore struct {
	*memStore
	cmu   sync.Mutex
	armed bool
}

func (s *conflictOnceStore) arm() {
	s.cmu.Lock()
	s.armed = true
	s.cmu.Unlock()
}

func (s *conflictOnceStore) CompareAndSwap(ctx context.Context, expectedVersion int64, p *model.Project) error {
	s.cmu.Lock()
	if s.armed {
		s.armed = false
		s.cmu.Unlock()
		return registry.ErrVersionConflict
	}
	s.cmu.Unlock()
	return s.memStore.CompareAndSwap(ctx, expectedVersion, p)
}

type fixture struct {
	store     *memStore
	ledger    *fakeLedger
	decisions *memDecisions
	workflow  *Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	ledger := newFakeLedger()
	decisions := &memDecisions{}
	engine := registry.NewEngine(store, ledger, registry.Options{
		ConfirmWait:  time.Millisecond * 50,
		PollInterval: time.Millisecond * 2,
	})
	checker := &roleChecker{caps: map[string][]string{
		"verifier-1":  {CapApproveProject, CapRejectProject, CapRetryOperation},
		"developer-1": {CapRetireCredits},
	}}

	wf, err := New(store, engine, checker, decisions, 4)
	require.NoError(t, err)
	t.Cleanup(wf.Close)

	return &fixture{store: store, ledger: ledger, decisions: decisions, workflow: wf}
}

func newConflictWorkflow(t *testing.T, store *conflictOnceStore, decisions *memDecisions) *Workflow {
	t.Helper()

	engine := registry.NewEngine(store, newFakeLedger(), registry.Options{
		ConfirmWait:  time.Millisecond * 50,
		PollInterval: time.Millisecond * 2,
	})
	checker := &roleChecker{caps: map[string][]string{
		"verifier-1": {CapApproveProject, CapRejectProject},
	}}

	wf, err := New(store, engine, checker, decisions, 4)
	require.NoError(t, err)
	t.Cleanup(wf.Close)
	return wf
}

func validSubmit() SubmitRequest {
	return SubmitRequest{
		Name:           "红树林修复示范项目",
		Description:    "海南东寨港红树林生态修复",
		Location:       "海南省海口市",
		Methodology:    "mangrove-restoration",
		CreditsClaimed: 500,
		OwnerAddress:   "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		SubmitterId:    42,
	}
}

func (f *fixture) seed(t *testing.T, state model.LifecycleState, mutate func(*model.Project)) string {
	t.Helper()
	p, err := f.workflow.Submit(context.Background(), validSubmit())
	require.NoError(t, err)

	if state != model.StateSubmitted || mutate != nil {
		stored, err := f.store.Load(context.Background(), p.ProjectId)
		require.NoError(t, err)
		stored.State = state
		if mutate != nil {
			mutate(stored)
		}
		require.NoError(t, f.store.CompareAndSwap(context.Background(), stored.Version, stored))
	}
	return p.ProjectId
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("creates submitted project", func(t *testing.T) {
		f := newFixture(t)

		p, err := f.workflow.Submit(ctx, validSubmit())
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(p.ProjectId, "prj-"))
		assert.Equal(t, model.StateSubmitted, p.State)
		assert.Equal(t, int64(500), p.CreditsClaimed)
		assert.Empty(t, p.TokenId)
		assert.Equal(t, int64(1), p.Version)
	})

	t.Run("validations", func(t *testing.T) {
		f := newFixture(t)

		req := validSubmit()
		req.Name = ""
		_, err := f.workflow.Submit(ctx, req)
		assert.True(t, registry.IsPrecondition(err))

		req = validSubmit()
		req.CreditsClaimed = 0
		_, err = f.workflow.Submit(ctx, req)
		assert.True(t, registry.IsPrecondition(err))

		req = validSubmit()
		req.OwnerAddress = "not-an-address"
		_, err = f.workflow.Submit(ctx, req)
		assert.True(t, registry.IsPrecondition(err))
	})
}

func TestApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("requires capability", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateSubmitted, nil)

		_, err := f.workflow.Approve(ctx, id, "developer-1", Decision{})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("approval triggers ledger registration", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateSubmitted, nil)

		p, err := f.workflow.Approve(ctx, id, "verifier-1", Decision{Comments: "现场核查通过"})
		require.NoError(t, err)
		assert.Equal(t, model.StateApproved, p.State)

		require.Len(t, f.decisions.records, 1)
		assert.True(t, f.decisions.records[0].Approved)
		assert.Equal(t, "verifier-1", f.decisions.records[0].ApproverId)

		// 注册异步上链，最终收敛到REGISTERED
		require.Eventually(t, func() bool {
			got, err := f.store.Load(ctx, id)
			return err == nil && got.State == model.StateRegistered
		}, time.Second*2, time.Millisecond*10)
	})

	t.Run("measured credits adjust claim downward", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateSubmitted, nil)

		p, err := f.workflow.Approve(ctx, id, "verifier-1", Decision{MeasuredCredits: 450})
		require.NoError(t, err)
		assert.Equal(t, int64(450), p.CreditsClaimed)
	})

	t.Run("measured credits above claim rejected", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateSubmitted, nil)

		_, err := f.workflow.Approve(ctx, id, "verifier-1", Decision{MeasuredCredits: 600})
		assert.True(t, registry.IsPrecondition(err))
	})

	t.Run("conflict loser leaves no approval record", func(t *testing.T) {
		store := &conflictOnceStore{memStore: newMemStore()}
		decisions := &memDecisions{}
		wf := newConflictWorkflow(t, store, decisions)

		p, err := wf.Submit(ctx, validSubmit())
		require.NoError(t, err)

		// 状态流转没落库，审核记录也不能出现
		store.arm()
		_, err = wf.Approve(ctx, p.ProjectId, "verifier-1", Decision{Comments: "并发输家"})
		assert.ErrorIs(t, err, registry.ErrVersionConflict)
		assert.Empty(t, decisions.records)

		got, err := store.Load(ctx, p.ProjectId)
		require.NoError(t, err)
		assert.Equal(t, model.StateSubmitted, got.State)
	})

	t.Run("only submitted projects can be approved", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateRejected, nil)

		_, err := f.workflow.Approve(ctx, id, "verifier-1", Decision{})
		assert.True(t, registry.IsStateTransition(err))
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()

	t.Run("terminal rejection", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateSubmitted, nil)

		p, err := f.workflow.Reject(ctx, id, "verifier-1", "证据材料不足")
		require.NoError(t, err)
		assert.Equal(t, model.StateRejected, p.State)
		assert.Equal(t, "证据材料不足", p.FailureReason)

		require.Len(t, f.decisions.records, 1)
		assert.False(t, f.decisions.records[0].Approved)

		// 终态：驳回后不可再审核
		_, err = f.workflow.Approve(ctx, id, "verifier-1", Decision{})
		assert.True(t, registry.IsStateTransition(err))
	})

	t.Run("reason required", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateSubmitted, nil)

		_, err := f.workflow.Reject(ctx, id, "verifier-1", "")
		assert.True(t, registry.IsPrecondition(err))
	})

	t.Run("conflict loser leaves no rejection record", func(t *testing.T) {
		store := &conflictOnceStore{memStore: newMemStore()}
		decisions := &memDecisions{}
		wf := newConflictWorkflow(t, store, decisions)

		p, err := wf.Submit(ctx, validSubmit())
		require.NoError(t, err)

		store.arm()
		_, err = wf.Reject(ctx, p.ProjectId, "verifier-1", "并发输家")
		assert.ErrorIs(t, err, registry.ErrVersionConflict)
		assert.Empty(t, decisions.records)
	})

	t.Run("only submitted projects can be rejected", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateRegistered, func(p *model.Project) {
			p.TokenId = "7"
		})

		_, err := f.workflow.Reject(ctx, id, "verifier-1", "too late")
		assert.True(t, registry.IsStateTransition(err))
	})

	t.Run("requires capability", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateSubmitted, nil)

		_, err := f.workflow.Reject(ctx, id, "developer-1", "no")
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestRetire(t *testing.T) {
	ctx := context.Background()

	t.Run("requires capability", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateRegistered, func(p *model.Project) {
			p.TokenId = "7"
		})

		_, err := f.workflow.Retire(ctx, id, "verifier-1", 100, "offset")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("delegates to engine", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateRegistered, func(p *model.Project) {
			p.TokenId = "7"
		})

		p, err := f.workflow.Retire(ctx, id, "developer-1", 200, "carbon neutral 2026")
		require.NoError(t, err)
		assert.Equal(t, int64(200), p.CreditsRetired)
	})
}

func TestRetryRegistration(t *testing.T) {
	ctx := context.Background()

	t.Run("retries from registration failed", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateRegistrationFailed, func(p *model.Project) {
			p.FailureReason = "gas spike"
		})

		p, err := f.workflow.RetryRegistration(ctx, id, "verifier-1")
		require.NoError(t, err)
		assert.Equal(t, model.StateRegistered, p.State)
		assert.Empty(t, p.FailureReason)
	})

	t.Run("rejected outside failed state", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateApproved, nil)

		_, err := f.workflow.RetryRegistration(ctx, id, "verifier-1")
		assert.True(t, registry.IsStateTransition(err))
	})

	t.Run("requires capability", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateRegistrationFailed, nil)

		_, err := f.workflow.RetryRegistration(ctx, id, "developer-1")
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestRetryRetirement(t *testing.T) {
	ctx := context.Background()

	t.Run("retries from retirement failed", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateRetirementFailed, func(p *model.Project) {
			p.TokenId = "7"
			p.FailureReason = "token paused"
		})

		p, err := f.workflow.RetryRetirement(ctx, id, "verifier-1", 100, "second attempt")
		require.NoError(t, err)
		assert.Equal(t, int64(100), p.CreditsRetired)
		assert.Equal(t, model.StateRegistered, p.State)
	})

	t.Run("rejected outside failed state", func(t *testing.T) {
		f := newFixture(t)
		id := f.seed(t, model.StateRegistered, func(p *model.Project) {
			p.TokenId = "7"
		})

		_, err := f.workflow.RetryRetirement(ctx, id, "verifier-1", 100, "nope")
		assert.True(t, registry.IsStateTransition(err))
	})
}
