package treasury

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kivu-erp/kivu-erp/internal/fx"
	"github.com/kivu-erp/kivu-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, id uuid.UUID) (CashAccount, error)
	ListAccounts(ctx context.Context) ([]CashAccount, error)
	ListForecasts(ctx context.Context, periodID int64) ([]CashFlowForecast, error)
}

// TxRepository exposes transactional operations for balance movements.
type TxRepository interface {
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (CashAccount, error)
	SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	InsertTransfer(ctx context.Context, transfer AccountTransfer) (int64, error)
	InsertPayment(ctx context.Context, payment Payment) error
	InsertAccount(ctx context.Context, account CashAccount) error
	SetAssignee(ctx context.Context, id uuid.UUID, userID int64, at time.Time) error
	UpsertForecast(ctx context.Context, forecast CashFlowForecast) (CashFlowForecast, error)
}

// AuditPort records treasury events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates cash account movements.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the treasury service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateAccount validates and persists a cash account with a zero balance.
func (s *Service) CreateAccount(ctx context.Context, account CashAccount) (CashAccount, error) {
	account.Number = strings.TrimSpace(account.Number)
	if account.Number == "" || account.Name == "" {
		return CashAccount{}, fmt.Errorf("%w: number and name required", ErrValidation)
	}
	if err := fx.ValidateCurrency(account.Currency); err != nil {
		return CashAccount{}, fmt.Errorf("%w: %s", ErrValidation, account.Currency)
	}
	account.ID = uuid.New()
	account.Balance = decimal.Zero
	account.CreatedAt = s.now()
	account.UpdatedAt = account.CreatedAt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertAccount(ctx, account)
	})
	if err != nil {
		return CashAccount{}, err
	}
	return account, nil
}

// AssignAccount hands the account to a user and records the handover.
func (s *Service) AssignAccount(ctx context.Context, accountID uuid.UUID, userID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccountForUpdate(ctx, accountID); err != nil {
			return err
		}
		return tx.SetAssignee(ctx, accountID, userID, s.now())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "cash_account.assign", accountID.String(), map[string]any{"assigned_to": userID})
	return nil
}

// Transfer moves funds between two cash accounts in one transaction. Both
// rows are locked in account-ID order so two opposing transfers cannot
// deadlock. Matching currencies force the rate to 1.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (AccountTransfer, error) {
	if input.Amount.Sign() <= 0 {
		return AccountTransfer{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if input.FromAccountID == input.ToAccountID {
		return AccountTransfer{}, ErrSameAccount
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	var transfer AccountTransfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		first, second := input.FromAccountID, input.ToAccountID
		if second.String() < first.String() {
			first, second = second, first
		}
		locked := map[uuid.UUID]CashAccount{}
		for _, id := range []uuid.UUID{first, second} {
			account, err := tx.GetAccountForUpdate(ctx, id)
			if err != nil {
				return err
			}
			locked[id] = account
		}
		from, to := locked[input.FromAccountID], locked[input.ToAccountID]

		rate, converted, err := resolveMovement(from.Currency, to.Currency, input.Amount, input.ExchangeRate)
		if err != nil {
			return err
		}
		if from.Balance.LessThan(input.Amount) {
			return fmt.Errorf("%w: account %s holds %s %s", ErrInsufficientFunds, from.Number, from.Balance, from.Currency)
		}
		if err := tx.SetBalance(ctx, from.ID, from.Balance.Sub(input.Amount)); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, to.ID, to.Balance.Add(converted)); err != nil {
			return err
		}
		transfer = AccountTransfer{
			FromAccountID:   from.ID,
			ToAccountID:     to.ID,
			Amount:          input.Amount,
			ExchangeRate:    rate,
			AmountConverted: converted,
			Date:            input.Date,
			Reference:       input.Reference,
		}
		id, err := tx.InsertTransfer(ctx, transfer)
		if err != nil {
			return err
		}
		transfer.ID = id
		return nil
	})
	if err != nil {
		return AccountTransfer{}, err
	}
	s.recordAudit(ctx, "transfer.execute", fmt.Sprintf("%d", transfer.ID), map[string]any{
		"from":   transfer.FromAccountID.String(),
		"to":     transfer.ToAccountID.String(),
		"amount": transfer.Amount.String(),
	})
	return transfer, nil
}

// Pay debits the cash account and records the settlement. The requisition
// amount converts at the supplied rate when the currencies differ.
func (s *Service) Pay(ctx context.Context, input PaymentInput) (Payment, error) {
	if input.Amount.Sign() <= 0 {
		return Payment{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if err := fx.ValidateCurrency(input.Currency); err != nil {
		return Payment{}, fmt.Errorf("%w: %s", ErrValidation, input.Currency)
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, input.CashAccountID)
		if err != nil {
			return err
		}
		rate, converted, err := resolveMovement(account.Currency, input.Currency, input.Amount, input.ExchangeRate)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(input.Amount) {
			return fmt.Errorf("%w: account %s holds %s %s", ErrInsufficientFunds, account.Number, account.Balance, account.Currency)
		}
		if err := tx.SetBalance(ctx, account.ID, account.Balance.Sub(input.Amount)); err != nil {
			return err
		}
		payment = Payment{
			ID:                uuid.New(),
			RequisitionID:     input.RequisitionID,
			CashAccountID:     account.ID,
			Amount:            input.Amount,
			RequisitionAmount: converted,
			ExchangeRate:      rate,
			Date:              input.Date,
			Reference:         input.Reference,
		}
		return tx.InsertPayment(ctx, payment)
	})
	if err != nil {
		return Payment{}, err
	}
	s.recordAudit(ctx, "payment.record", payment.ID.String(), map[string]any{
		"cash_account": payment.CashAccountID.String(),
		"amount":       payment.Amount.String(),
	})
	return payment, nil
}

// SetForecast upserts the inflow/outflow projection for one account and
// period.
func (s *Service) SetForecast(ctx context.Context, forecast CashFlowForecast) (CashFlowForecast, error) {
	if forecast.Inflow.Sign() < 0 || forecast.Outflow.Sign() < 0 {
		return CashFlowForecast{}, fmt.Errorf("%w: inflow and outflow must not be negative", ErrValidation)
	}
	if _, err := s.repo.GetAccount(ctx, forecast.CashAccountID); err != nil {
		return CashFlowForecast{}, err
	}
	var stored CashFlowForecast
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		stored, err = tx.UpsertForecast(ctx, forecast)
		return err
	})
	if err != nil {
		return CashFlowForecast{}, err
	}
	return stored, nil
}

// GetAccount returns one cash account.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (CashAccount, error) {
	return s.repo.GetAccount(ctx, id)
}

// ListAccounts returns every cash account.
func (s *Service) ListAccounts(ctx context.Context) ([]CashAccount, error) {
	return s.repo.ListAccounts(ctx)
}

// ListForecasts returns the forecasts recorded for a period.
func (s *Service) ListForecasts(ctx context.Context, periodID int64) ([]CashFlowForecast, error) {
	return s.repo.ListForecasts(ctx, periodID)
}

// resolveMovement returns the effective rate and converted amount for a
// cross-currency movement. Matching currencies force the rate to 1; differing
// currencies require an explicit positive rate.
func resolveMovement(from, to string, amount decimal.Decimal, rate *decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), amount, nil
	}
	if rate == nil || rate.Sign() <= 0 {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("%w: %s->%s", ErrRateRequired, from, to)
	}
	return *rate, amount.Mul(*rate), nil
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "treasury",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}
