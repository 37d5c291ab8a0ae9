package requisition

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kivu-erp/kivu-erp/internal/directory"
	"github.com/kivu-erp/kivu-erp/internal/shared"
	"github.com/kivu-erp/kivu-erp/internal/workflow"
)

// fakeRepo implements RepositoryPort and TxRepository in memory.
type fakeRepo struct {
	reqs        map[uuid.UUID]*Requisition
	shares      []Share
	attachments []Attachment
	nextID      int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{reqs: map[uuid.UUID]*Requisition{}}
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *fakeRepo) Get(_ context.Context, id uuid.UUID) (Requisition, error) {
	req, ok := r.reqs[id]
	if !ok {
		return Requisition{}, ErrNotFound
	}
	return *req, nil
}

func (r *fakeRepo) ListByRequester(_ context.Context, requesterID int64) ([]Requisition, error) {
	var out []Requisition
	for _, req := range r.reqs {
		if req.RequesterID == requesterID {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListShares(_ context.Context, id uuid.UUID) ([]Share, error) {
	var out []Share
	for _, share := range r.shares {
		if share.RequisitionID == id {
			out = append(out, share)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (Requisition, error) {
	return r.Get(ctx, id)
}

func (r *fakeRepo) Insert(_ context.Context, req Requisition) error {
	for _, existing := range r.reqs {
		if existing.RequesterID == req.RequesterID && existing.Narration == req.Narration {
			return ErrDuplicateNarration
		}
	}
	stored := req
	r.reqs[req.ID] = &stored
	return nil
}

func (r *fakeRepo) InsertLines(_ context.Context, id uuid.UUID, lines []Line) error {
	if req, ok := r.reqs[id]; ok {
		req.Lines = lines
	}
	return nil
}

func (r *fakeRepo) SetState(_ context.Context, id uuid.UUID, state workflow.State, at time.Time) error {
	req, ok := r.reqs[id]
	if !ok {
		return ErrNotFound
	}
	req.State = state
	req.ModifiedAt = at
	return nil
}

func (r *fakeRepo) SetConverted(_ context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	req, ok := r.reqs[id]
	if !ok {
		return false, ErrNotFound
	}
	if req.AmountConverted != nil {
		return false, nil
	}
	stored := amount
	req.AmountConverted = &stored
	return true, nil
}

func (r *fakeRepo) InsertShare(_ context.Context, share Share) (int64, error) {
	for _, existing := range r.shares {
		if existing.RequisitionID == share.RequisitionID && existing.SharedWithID == share.SharedWithID {
			return 0, ErrDuplicateShare
		}
	}
	r.nextID++
	share.ID = r.nextID
	r.shares = append(r.shares, share)
	return share.ID, nil
}

func (r *fakeRepo) InsertAttachment(_ context.Context, attachment Attachment) (int64, error) {
	r.nextID++
	attachment.ID = r.nextID
	r.attachments = append(r.attachments, attachment)
	return attachment.ID, nil
}

// fakeDirectory serves a fixed hierarchy and permission set.
type fakeDirectory struct {
	users       map[int64]directory.User
	permissions map[int64][]string
}

func (d *fakeDirectory) GetUser(_ context.Context, id int64) (directory.User, error) {
	user, ok := d.users[id]
	if !ok {
		return directory.User{}, directory.ErrNotFound
	}
	return user, nil
}

func (d *fakeDirectory) ManagerChain(_ context.Context, userID int64) ([]directory.User, error) {
	var chain []directory.User
	seen := map[int64]bool{userID: true}
	current, ok := d.users[userID]
	if !ok {
		return nil, directory.ErrNotFound
	}
	for current.ReportsTo != nil {
		next, ok := d.users[*current.ReportsTo]
		if !ok || seen[next.ID] {
			break
		}
		seen[next.ID] = true
		chain = append(chain, next)
		current = next
	}
	return chain, nil
}

func (d *fakeDirectory) HasPermission(_ context.Context, userID int64, permission string) (bool, error) {
	for _, p := range d.permissions[userID] {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

type fakeNotifier struct {
	sent []string
	fail bool
}

func (n *fakeNotifier) Send(_ context.Context, to, subject, _ string) error {
	if n.fail {
		return errors.New("smtp unreachable")
	}
	n.sent = append(n.sent, to+": "+subject)
	return nil
}

func ptr(v int64) *int64 { return &v }

// Hierarchy: requester(1) -> m1(2) -> m2(3); only m2 holds approve.
func seedRequisition(t *testing.T) (*fakeRepo, *fakeDirectory, *fakeNotifier, *Service) {
	t.Helper()
	repo := newFakeRepo()
	dir := &fakeDirectory{
		users: map[int64]directory.User{
			1: {ID: 1, Email: "requester@kivu.example", Name: "Requester", ReportsTo: ptr(2), IsActive: true},
			2: {ID: 2, Email: "m1@kivu.example", Name: "Manager One", ReportsTo: ptr(3), IsActive: true},
			3: {ID: 3, Email: "m2@kivu.example", Name: "Manager Two", IsActive: true},
			9: {ID: 9, Email: "outsider@kivu.example", Name: "Outsider", IsActive: true},
		},
		permissions: map[int64][]string{
			3: {shared.PermRequisitionApprove},
		},
	}
	notifier := &fakeNotifier{}
	svc := NewService(repo, dir, notifier, nil, nil, nil, slog.Default())
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) })
	return repo, dir, notifier, svc
}

func createDraft(t *testing.T, svc *Service) Requisition {
	t.Helper()
	req, err := svc.Create(context.Background(), CreateInput{
		RequesterID:  1,
		Narration:    "Field office supplies",
		Amount:       decimal.NewFromInt(100),
		ExchangeRate: decimal.NewFromFloat(1.5),
		Lines: []LineInput{
			{Description: "Paper", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(10)},
		},
	})
	require.NoError(t, err)
	return req
}

func submitDraft(t *testing.T, svc *Service, id uuid.UUID) Requisition {
	t.Helper()
	_, err := svc.Share(context.Background(), id, 1, 9, false)
	require.NoError(t, err)
	req, err := svc.Submit(context.Background(), id, 1)
	require.NoError(t, err)
	return req
}

func TestCreateRejectsDuplicateNarration(t *testing.T) {
	_, _, _, svc := seedRequisition(t)

	createDraft(t, svc)
	_, err := svc.Create(context.Background(), CreateInput{
		RequesterID:  1,
		Narration:    "Field office supplies",
		Amount:       decimal.NewFromInt(50),
		ExchangeRate: decimal.NewFromInt(2),
	})
	require.ErrorIs(t, err, ErrDuplicateNarration)
}

func TestSubmitComputesConvertedOnce(t *testing.T) {
	repo, _, _, svc := seedRequisition(t)
	draft := createDraft(t, svc)

	req := submitDraft(t, svc, draft.ID)
	require.NotNil(t, req.AmountConverted)
	require.True(t, req.AmountConverted.Equal(decimal.NewFromInt(150)), "got %s", req.AmountConverted)

	// Changing amount and rate afterwards must not recompute the conversion.
	repo.reqs[draft.ID].Amount = decimal.NewFromInt(999)
	repo.reqs[draft.ID].ExchangeRate = decimal.NewFromInt(3)
	repo.reqs[draft.ID].State = StateShared
	again, err := svc.Submit(context.Background(), draft.ID, 1)
	require.NoError(t, err)
	require.True(t, again.AmountConverted.Equal(decimal.NewFromInt(150)))
}

func TestSubmitNotifiesResolvedApprover(t *testing.T) {
	_, _, notifier, svc := seedRequisition(t)
	draft := createDraft(t, svc)

	submitDraft(t, svc, draft.ID)
	require.Len(t, notifier.sent, 1)
	require.Contains(t, notifier.sent[0], "m2@kivu.example")
}

func TestShareGuardedByRequester(t *testing.T) {
	_, _, _, svc := seedRequisition(t)
	draft := createDraft(t, svc)

	_, err := svc.Share(context.Background(), draft.ID, 9, 2, false)
	require.ErrorIs(t, err, workflow.ErrTransitionUnavailable)
}

type transitionCounter struct {
	states []string
}

func (m *transitionCounter) ObserveTransition(subject, state string) {
	m.states = append(m.states, state)
}

func TestShareCountsTransitionOnlyOnStateChange(t *testing.T) {
	_, _, _, svc := seedRequisition(t)
	counter := &transitionCounter{}
	svc.metrics = counter
	draft := createDraft(t, svc)

	_, err := svc.Share(context.Background(), draft.ID, 1, 9, false)
	require.NoError(t, err)

	// Already shared: the grant is recorded but no transition happened.
	_, err = svc.Share(context.Background(), draft.ID, 1, 2, true)
	require.NoError(t, err)
	require.Equal(t, []string{string(StateShared)}, counter.states)
}

func TestApprovalRoutesToFirstQualifiedAncestor(t *testing.T) {
	_, _, notifier, svc := seedRequisition(t)
	draft := createDraft(t, svc)
	submitDraft(t, svc, draft.ID)

	// M1 sits between requester and M2 but lacks the permission.
	_, err := svc.Approve(context.Background(), draft.ID, 2)
	require.ErrorIs(t, err, workflow.ErrTransitionUnavailable)

	req, err := svc.Approve(context.Background(), draft.ID, 3)
	require.NoError(t, err)
	require.Equal(t, StateApproved, req.State)
	// Requester notified of the outcome.
	require.Contains(t, notifier.sent[len(notifier.sent)-1], "requester@kivu.example")
}

func TestRejectNotifiesRequester(t *testing.T) {
	_, _, notifier, svc := seedRequisition(t)
	draft := createDraft(t, svc)
	submitDraft(t, svc, draft.ID)

	req, err := svc.Reject(context.Background(), draft.ID, 3)
	require.NoError(t, err)
	require.Equal(t, StateRejected, req.State)
	require.Contains(t, notifier.sent[len(notifier.sent)-1], "rejected")
}

func TestStalledRequisitionSurfacesEmptyTransitions(t *testing.T) {
	_, dir, _, svc := seedRequisition(t)
	// Nobody in the chain holds approve.
	dir.permissions = map[int64][]string{}
	draft := createDraft(t, svc)
	submitDraft(t, svc, draft.ID)

	_, err := svc.Approve(context.Background(), draft.ID, 3)
	require.ErrorIs(t, err, workflow.ErrTransitionUnavailable)

	states, err := svc.Available(context.Background(), draft.ID, 3)
	require.NoError(t, err)
	require.Empty(t, states)

	// The requisition remains submitted.
	req, err := svc.Get(context.Background(), draft.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StateSubmitted, req.State)
}

func TestShareGrantsSecondaryApprovalChannel(t *testing.T) {
	_, _, _, svc := seedRequisition(t)
	draft := createDraft(t, svc)
	// Outsider 9 is outside the hierarchy but receives a can-approve share.
	_, err := svc.Share(context.Background(), draft.ID, 1, 9, true)
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), draft.ID, 1)
	require.NoError(t, err)

	req, err := svc.Approve(context.Background(), draft.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StateApproved, req.State)
}

func TestApproveTerminalStateRejected(t *testing.T) {
	_, _, _, svc := seedRequisition(t)
	draft := createDraft(t, svc)
	submitDraft(t, svc, draft.ID)

	_, err := svc.Approve(context.Background(), draft.ID, 3)
	require.NoError(t, err)
	_, err = svc.Reject(context.Background(), draft.ID, 3)
	require.ErrorIs(t, err, workflow.ErrTerminalState)
}

func TestNotificationFailureDoesNotFailTransition(t *testing.T) {
	_, _, notifier, svc := seedRequisition(t)
	notifier.fail = true
	draft := createDraft(t, svc)

	req := submitDraft(t, svc, draft.ID)
	require.Equal(t, StateSubmitted, req.State)
}

func TestVisibilityRules(t *testing.T) {
	_, _, _, svc := seedRequisition(t)
	draft := createDraft(t, svc)
	submitDraft(t, svc, draft.ID)

	// Requester, shared user, and resolved approver can view.
	for _, userID := range []int64{1, 9, 3} {
		_, err := svc.Get(context.Background(), draft.ID, userID)
		require.NoError(t, err, "user %d", userID)
	}
	// M1 is in the chain but not the approver and not shared.
	_, err := svc.Get(context.Background(), draft.ID, 2)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveApproverSkipsInactive(t *testing.T) {
	_, dir, _, _ := seedRequisition(t)
	// M2 deactivated; chain exhausts with no approver.
	user := dir.users[3]
	user.IsActive = false
	dir.users[3] = user

	approver, ok, err := ResolveApprover(context.Background(), dir, 1)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, approver.ID)
}

type fakeApprovals struct {
	logs []shared.ApprovalLog
}

func (f *fakeApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func TestApprovalTrailRecordsEveryStep(t *testing.T) {
	_, _, _, svc := seedRequisition(t)
	trail := &fakeApprovals{}
	svc.approvals = trail

	draft := createDraft(t, svc)
	submitDraft(t, svc, draft.ID)
	_, err := svc.Approve(context.Background(), draft.ID, 3)
	require.NoError(t, err)

	require.Len(t, trail.logs, 3)
	require.Equal(t, shared.ApprovalShare, trail.logs[0].Action)
	require.Equal(t, shared.ApprovalSubmit, trail.logs[1].Action)
	require.Equal(t, shared.ApprovalApprove, trail.logs[2].Action)
	require.Equal(t, int64(3), trail.logs[2].ActorID)
	require.Equal(t, draft.ID, trail.logs[2].RefID)
}
