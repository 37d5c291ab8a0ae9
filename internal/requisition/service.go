package requisition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kivu-erp/kivu-erp/internal/shared"
	"github.com/kivu-erp/kivu-erp/internal/workflow"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Requisition, error)
	ListByRequester(ctx context.Context, requesterID int64) ([]Requisition, error)
	ListShares(ctx context.Context, id uuid.UUID) ([]Share, error)
}

// TxRepository exposes transactional operations for state changes.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (Requisition, error)
	Insert(ctx context.Context, req Requisition) error
	InsertLines(ctx context.Context, id uuid.UUID, lines []Line) error
	SetState(ctx context.Context, id uuid.UUID, state workflow.State, at time.Time) error
	SetConverted(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error)
	InsertShare(ctx context.Context, share Share) (int64, error)
	InsertAttachment(ctx context.Context, attachment Attachment) (int64, error)
}

// NotifierPort is the notification collaborator. Send failures never fail a
// transition; the service logs and moves on.
type NotifierPort interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AuditPort records requisition events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort persists the approval trail of a requisition.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// MetricsPort counts workflow transitions.
type MetricsPort interface {
	ObserveTransition(subject, state string)
}

// Service drives the requisition workflow.
type Service struct {
	repo      RepositoryPort
	dir       DirectoryPort
	notifier  NotifierPort
	audit     AuditPort
	approvals ApprovalPort
	metrics   MetricsPort
	logger    *slog.Logger
	machine   *workflow.Machine
	now       func() time.Time
}

// NewService constructs the requisition service and its transition table.
func NewService(repo RepositoryPort, dir DirectoryPort, notifier NotifierPort, audit AuditPort, approvals ApprovalPort, metrics MetricsPort, logger *slog.Logger) *Service {
	s := &Service{
		repo:      repo,
		dir:       dir,
		notifier:  notifier,
		audit:     audit,
		approvals: approvals,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
	s.machine = workflow.New(StateDraft, []workflow.Transition{
		{From: StateDraft, To: StateShared, Guard: s.requesterOnly},
		{From: StateShared, To: StateSubmitted, Guard: s.requesterOnly},
		{From: StateSubmitted, To: StateApproved, Guard: s.approverOnly},
		{From: StateSubmitted, To: StateRejected, Guard: s.approverOnly},
	})
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens a draft requisition.
func (s *Service) Create(ctx context.Context, input CreateInput) (Requisition, error) {
	if err := input.Validate(); err != nil {
		return Requisition{}, err
	}
	now := s.now()
	req := Requisition{
		ID:           uuid.New(),
		RequesterID:  input.RequesterID,
		Narration:    input.Narration,
		Amount:       input.Amount,
		ExchangeRate: input.ExchangeRate,
		CostCenterID: input.CostCenterID,
		CategoryID:   input.CategoryID,
		State:        s.machine.Initial(),
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	for _, line := range input.Lines {
		req.Lines = append(req.Lines, Line{
			RequisitionID: req.ID,
			Description:   line.Description,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			TotalPrice:    line.Quantity.Mul(line.UnitPrice),
		})
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, req); err != nil {
			return err
		}
		return tx.InsertLines(ctx, req.ID, req.Lines)
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordAudit(ctx, "requisition.create", req.ID.String(), map[string]any{"requester_id": req.RequesterID})
	return req, nil
}

// Share moves a draft to shared and grants the target user visibility, with
// optional approval capability. Sharing an already shared or submitted
// requisition only adds the grant.
func (s *Service) Share(ctx context.Context, id uuid.UUID, actorID, sharedWithID int64, canApprove bool) (Share, error) {
	if sharedWithID == 0 {
		return Share{}, fmt.Errorf("%w: shared_with required", ErrValidation)
	}
	if _, err := s.dir.GetUser(ctx, sharedWithID); err != nil {
		return Share{}, err
	}
	var share Share
	var transitioned bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.RequesterID != actorID {
			return fmt.Errorf("%w: only the requester may share", workflow.ErrTransitionUnavailable)
		}
		if req.State == StateDraft {
			if err := s.machine.Fire(ctx, &req, StateShared, actorID); err != nil {
				return err
			}
			if err := tx.SetState(ctx, id, StateShared, s.now()); err != nil {
				return err
			}
			transitioned = true
		}
		share = Share{RequisitionID: id, SharedWithID: sharedWithID, CanApprove: canApprove, CreatedAt: s.now()}
		shareID, err := tx.InsertShare(ctx, share)
		if err != nil {
			return err
		}
		share.ID = shareID
		return nil
	})
	if err != nil {
		return Share{}, err
	}
	if transitioned {
		s.observeTransition(string(StateShared))
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalShare, fmt.Sprintf("shared with user %d", sharedWithID))
	s.recordAudit(ctx, "requisition.share", id.String(), map[string]any{
		"shared_with": sharedWithID,
		"can_approve": canApprove,
	})
	return share, nil
}

// Submit moves a shared requisition to submitted. The converted amount is
// computed exactly once — a requisition that already carries one keeps it even
// when amount or rate changed since. The resolved approver is notified.
func (s *Service) Submit(ctx context.Context, id uuid.UUID, actorID int64) (Requisition, error) {
	var req Requisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.machine.Fire(ctx, &req, StateSubmitted, actorID); err != nil {
			return err
		}
		if req.AmountConverted == nil {
			converted := req.Amount.Mul(req.ExchangeRate)
			set, err := tx.SetConverted(ctx, id, converted)
			if err != nil {
				return err
			}
			if set {
				req.AmountConverted = &converted
			}
		}
		req.State = StateSubmitted
		return tx.SetState(ctx, id, StateSubmitted, s.now())
	})
	if err != nil {
		return Requisition{}, err
	}
	s.observeTransition(string(StateSubmitted))
	s.recordApproval(ctx, id, actorID, shared.ApprovalSubmit, "")
	s.recordAudit(ctx, "requisition.submit", id.String(), map[string]any{"requester_id": req.RequesterID})

	if approver, ok, err := ResolveApprover(ctx, s.dir, req.RequesterID); err != nil {
		s.logger.Warn("resolve approver", slog.String("requisition", id.String()), slog.Any("error", err))
	} else if ok {
		s.notify(ctx, approver.Email,
			"Requisition pending your approval",
			fmt.Sprintf("Requisition %s (%s USD) awaits your decision.", req.Narration, req.Amount))
	} else {
		s.logger.Warn("requisition stalled: no qualifying approver in chain",
			slog.String("requisition", id.String()), slog.Int64("requester", req.RequesterID))
	}
	return req, nil
}

// Approve moves a submitted requisition to approved and notifies the
// requester.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actorID int64) (Requisition, error) {
	return s.decide(ctx, id, actorID, StateApproved)
}

// Reject moves a submitted requisition to rejected and notifies the
// requester.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actorID int64) (Requisition, error) {
	return s.decide(ctx, id, actorID, StateRejected)
}

func (s *Service) decide(ctx context.Context, id uuid.UUID, actorID int64, to workflow.State) (Requisition, error) {
	var req Requisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.machine.Fire(ctx, &req, to, actorID); err != nil {
			return err
		}
		req.State = to
		return tx.SetState(ctx, id, to, s.now())
	})
	if err != nil {
		return Requisition{}, err
	}
	s.observeTransition(string(to))
	action := shared.ApprovalApprove
	if to == StateRejected {
		action = shared.ApprovalReject
	}
	s.recordApproval(ctx, id, actorID, action, "")
	s.recordAudit(ctx, "requisition."+string(to), id.String(), map[string]any{"actor_id": actorID})

	if requester, err := s.dir.GetUser(ctx, req.RequesterID); err != nil {
		s.logger.Warn("load requester for notification", slog.Any("error", err))
	} else {
		s.notify(ctx, requester.Email,
			fmt.Sprintf("Requisition %s", to),
			fmt.Sprintf("Your requisition %q was %s.", req.Narration, to))
	}
	return req, nil
}

// Get returns one requisition if the user may view it.
func (s *Service) Get(ctx context.Context, id uuid.UUID, userID int64) (Requisition, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	visible, err := s.canView(ctx, req, userID)
	if err != nil {
		return Requisition{}, err
	}
	if !visible {
		return Requisition{}, ErrNotFound
	}
	return req, nil
}

// ListMine returns the user's own requisitions.
func (s *Service) ListMine(ctx context.Context, userID int64) ([]Requisition, error) {
	return s.repo.ListByRequester(ctx, userID)
}

// Available lists the workflow targets the actor may reach. An empty list on
// a submitted requisition surfaces the stalled no-approver dead end.
func (s *Service) Available(ctx context.Context, id uuid.UUID, actorID int64) ([]workflow.State, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.machine.Available(ctx, &req, actorID), nil
}

// AddAttachment links an already stored blob to the requisition.
func (s *Service) AddAttachment(ctx context.Context, id uuid.UUID, actorID int64, fileKey string) (Attachment, error) {
	if fileKey == "" {
		return Attachment{}, fmt.Errorf("%w: file key required", ErrValidation)
	}
	var attachment Attachment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.RequesterID != actorID {
			return fmt.Errorf("%w: only the requester may attach files", workflow.ErrTransitionUnavailable)
		}
		attachment = Attachment{RequisitionID: id, FileKey: fileKey, UploadedBy: actorID, UploadedAt: s.now()}
		attachmentID, err := tx.InsertAttachment(ctx, attachment)
		if err != nil {
			return err
		}
		attachment.ID = attachmentID
		return nil
	})
	if err != nil {
		return Attachment{}, err
	}
	return attachment, nil
}

func (s *Service) requesterOnly(_ context.Context, subject workflow.Subject, actorID int64) error {
	req := subject.(*Requisition)
	if req.RequesterID != actorID {
		return workflow.ErrTransitionUnavailable
	}
	return nil
}

// approverOnly admits the dynamically resolved hierarchy approver or any user
// holding a can-approve share on this requisition.
func (s *Service) approverOnly(ctx context.Context, subject workflow.Subject, actorID int64) error {
	req := subject.(*Requisition)
	approver, ok, err := ResolveApprover(ctx, s.dir, req.RequesterID)
	if err != nil {
		return err
	}
	if ok && approver.ID == actorID {
		return nil
	}
	shares, err := s.repo.ListShares(ctx, req.ID)
	if err != nil {
		return err
	}
	for _, share := range shares {
		if share.SharedWithID == actorID && share.CanApprove {
			return nil
		}
	}
	return workflow.ErrTransitionUnavailable
}

func (s *Service) canView(ctx context.Context, req Requisition, userID int64) (bool, error) {
	if req.RequesterID == userID {
		return true, nil
	}
	shares, err := s.repo.ListShares(ctx, req.ID)
	if err != nil {
		return false, err
	}
	for _, share := range shares {
		if share.SharedWithID == userID {
			return true, nil
		}
	}
	approver, ok, err := ResolveApprover(ctx, s.dir, req.RequesterID)
	if err != nil {
		return false, err
	}
	return ok && approver.ID == userID, nil
}

func (s *Service) notify(ctx context.Context, to, subject, body string) {
	if s.notifier == nil || to == "" {
		return
	}
	if err := s.notifier.Send(ctx, to, subject, body); err != nil {
		s.logger.Warn("notification failed", slog.String("to", to), slog.Any("error", err))
	}
}

func (s *Service) observeTransition(state string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition("requisition", state)
	}
}

func (s *Service) recordApproval(ctx context.Context, id uuid.UUID, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "requisition",
		RefID:   id,
		ActorID: actorID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	})
	if err != nil {
		s.logger.Warn("record approval", slog.String("requisition", id.String()), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "requisition",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}
